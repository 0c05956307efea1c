package rxbridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a decoded structured-data value. Only the field matching Kind is
// meaningful.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Arr  []Value
	Obj  map[string]Value
}

var errTrailingData = errors.New("trailing data after document")

// ParseValue decodes a single JSON document into a Value.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return Value{}, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errTrailingData
	}

	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("bad number %q: %w", t, err)
		}

		return Value{Kind: KindNumber, Num: f}, nil
	case string:
		return Value{Kind: KindString, Str: t}, nil
	case json.Delim:
		if t == '[' {
			arr := []Value{}
			for dec.More() {
				el, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}

				arr = append(arr, el)
			}

			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}

			return Value{Kind: KindArray, Arr: arr}, nil
		}

		obj := map[string]Value{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return Value{}, err
			}

			key, _ := keyTok.(string)

			el, err := parseValue(dec)
			if err != nil {
				return Value{}, err
			}

			obj[key] = el
		}

		if _, err := dec.Token(); err != nil {
			return Value{}, err
		}

		return Value{Kind: KindObject, Obj: obj}, nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

// DecodeEnvelope parses data and projects it onto the envelope schema. A
// malformed document is reported as a single error; schema violations are
// aggregated into one *SchemaError.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, wrap(ErrFormat, "decode envelope", "", err)
	}

	p := &projector{}
	env := p.envelope(v)

	if len(p.problems) > 0 {
		return nil, &SchemaError{Problems: p.problems}
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}

	return env, nil
}

// projector converts a Value into typed fields, collecting every problem.
type projector struct {
	problems []error
}

func (p *projector) fail(path, format string, args ...any) {
	p.problems = append(p.problems, fmt.Errorf("%s: %s", path, fmt.Sprintf(format, args...)))
}

func (p *projector) field(obj map[string]Value, path, key string, want Kind, required bool) (Value, bool) {
	v, ok := obj[key]
	if !ok || v.Kind == KindNull {
		if required {
			p.fail(path+key, "missing")
		}

		return Value{}, false
	}

	if v.Kind != want {
		p.fail(path+key, "expected %s, got %s", want, v.Kind)
		return Value{}, false
	}

	return v, true
}

func (p *projector) str(obj map[string]Value, path, key string, required bool) string {
	v, _ := p.field(obj, path, key, KindString, required)
	return v.Str
}

func (p *projector) num(obj map[string]Value, path, key string) float64 {
	v, _ := p.field(obj, path, key, KindNumber, true)
	return v.Num
}

func (p *projector) optNum(obj map[string]Value, path, key string) *float64 {
	v, ok := p.field(obj, path, key, KindNumber, false)
	if !ok {
		return nil
	}

	n := v.Num

	return &n
}

func (p *projector) integer(obj map[string]Value, path, key string, required bool) int {
	v, ok := p.field(obj, path, key, KindNumber, required)
	if !ok {
		return 0
	}

	return p.toInt(v, path+key)
}

func (p *projector) toInt(v Value, path string) int {
	if v.Num != math.Trunc(v.Num) || math.Abs(v.Num) > math.MaxInt32 {
		p.fail(path, "expected integer, got %g", v.Num)
		return 0
	}

	return int(v.Num)
}

func (p *projector) envelope(v Value) *Envelope {
	env := &Envelope{}

	if v.Kind != KindObject {
		p.fail("$", "expected object, got %s", v.Kind)
		return env
	}

	obj := v.Obj
	env.WavPath = p.str(obj, "", "wav_path", true)
	env.SampleRate = p.integer(obj, "", "sample_rate", true)
	env.NumChannels = p.integer(obj, "", "num_channels", true)
	env.RangeStart = p.num(obj, "", "range_start")
	env.RangeEnd = p.num(obj, "", "range_end")
	env.TimeSelStart = p.optNum(obj, "", "time_sel_start")
	env.TimeSelEnd = p.optNum(obj, "", "time_sel_end")
	env.Timestamp = p.num(obj, "", "timestamp")
	env.ReturnedAt = p.optNum(obj, "", "returned_at")

	items, ok := p.field(obj, "", "items", KindArray, true)
	if !ok {
		return env
	}

	env.Items = make([]ClipRecord, 0, len(items.Arr))
	for i, it := range items.Arr {
		env.Items = append(env.Items, p.record(it, fmt.Sprintf("items[%d].", i)))
	}

	return env
}

func (p *projector) record(v Value, path string) ClipRecord {
	var rec ClipRecord

	if v.Kind != KindObject {
		p.fail(path[:len(path)-1], "expected object, got %s", v.Kind)
		return rec
	}

	obj := v.Obj
	rec.TrackGUID = TrackID(p.str(obj, path, "track_guid", true))
	rec.ItemGUID = ClipID(p.str(obj, path, "item_guid", true))
	rec.TrackIdx = p.integer(obj, path, "track_idx", true)
	rec.FirstOutCh = p.integer(obj, path, "first_out_ch", true)
	rec.PlaybackChannels = p.integer(obj, path, "playback_channels", true)
	rec.ChanMode = ChanMode(p.integer(obj, path, "chanmode", true))
	rec.Position = p.num(obj, path, "position")
	rec.Length = p.num(obj, path, "length")
	rec.StartOffs = p.num(obj, path, "start_offs")

	if rate := p.optNum(obj, path, "playrate"); rate != nil {
		rec.PlayRate = *rate
	}

	if chans, ok := p.field(obj, path, "src_channels", KindArray, false); ok {
		rec.SourceChannels = make([]int, 0, len(chans.Arr))
		for i, c := range chans.Arr {
			elPath := fmt.Sprintf("%ssrc_channels[%d]", path, i)
			if c.Kind != KindNumber {
				p.fail(elPath, "expected number, got %s", c.Kind)
				continue
			}

			rec.SourceChannels = append(rec.SourceChannels, p.toInt(c, elPath))
		}
	}

	if dm, ok := p.field(obj, path, "downmix", KindBool, false); ok {
		rec.Downmix = dm.Bool
	}

	if name, ok := p.field(obj, path, "take_name", KindString, false); ok {
		s := name.Str
		rec.TakeName = &s
	}

	rec.ItemVol = p.optNum(obj, path, "item_vol")
	rec.TakeVol = p.optNum(obj, path, "take_vol")

	return rec
}
