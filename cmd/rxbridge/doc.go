// Command rxbridge moves multitrack clips out to an external restoration tool
// and brings the processed audio back.
//
// A project is a TOML session document (see internal/session). "export"
// renders the selected clips into one multichannel WAV and stores the
// envelope that maps its channels back to tracks. "return" cuts the last
// saved container out of the tool's output and replaces the exported region
// on every affected track. "inspect" and "extract" are diagnostics, and
// "config init" writes a sample configuration.
package main
