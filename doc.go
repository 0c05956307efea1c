// Package rxbridge round-trips multitrack audio between a timeline editor and
// an external restoration tool that only accepts a single flat audio file.
//
// The export path resolves each clip's channel mode, allocates a contiguous
// block of output channels per track, and multiplexes every contributing clip
// into one interleaved 24-bit PCM WAV covering a shared time range. An
// Envelope correlating every clip with its channel block is persisted next to
// the exchange file and in a keyed Slot.
//
// The return path walks the concatenated RIFF containers the restoration tool
// leaves behind, extracts the last one as a standalone WAV, and replaces the
// exported region on every affected track, either fully or restricted to a
// time selection:
//
//   - Export(host, ExportOptions) (*Envelope, error)
//   - Return(host, ReturnOptions) (*ReturnResult, error)
//
// The editor itself is consumed through the Host interface. Tracks and clips
// are always referenced by identity and resolved fresh on every call.
package rxbridge
