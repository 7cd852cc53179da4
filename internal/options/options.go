// Package options implements negotiation of the RFC 2347/2348/2349
// TFTP options: blksize, timeout, tsize, and windowsize.
package options

import (
	"strconv"

	"github.com/Merith-TK/tftpd/internal/wire"
)

const (
	DefaultBlockSize = 512
	MinBlockSize     = 8
	MaxBlockSize     = 65464

	DefaultTimeoutSeconds = 5
	MinTimeoutSeconds     = 1
	MaxTimeoutSeconds     = 255

	DefaultWindowSize = 1
	MinWindowSize     = 1
	MaxWindowSize     = 65535
)

// Negotiated holds the effective per-session parameters after
// clamping and defaulting.
type Negotiated struct {
	BlockSize      int
	TimeoutSeconds int
	WindowSize     int
	TSize          int64
	TSizeRequested bool
}

// Negotiate parses the options of req, clamps recognized ones to
// their valid ranges, and returns the effective parameters plus the
// ordered list of option/value pairs to echo back in an OACK. Unknown
// options are silently dropped. isRead selects RRQ semantics for
// tsize (overwritten with the real file size); fileSize is ignored
// when isRead is false.
func Negotiate(req *wire.Request, isRead bool, fileSize int64) (Negotiated, []wire.Option) {
	n := Negotiated{
		BlockSize:      DefaultBlockSize,
		TimeoutSeconds: DefaultTimeoutSeconds,
		WindowSize:     DefaultWindowSize,
	}

	var oack []wire.Option
	for _, opt := range req.Options {
		switch opt.Name {
		case "blksize":
			v, err := strconv.Atoi(opt.Value)
			if err != nil {
				continue
			}
			n.BlockSize = clamp(v, MinBlockSize, MaxBlockSize)
			oack = append(oack, wire.Option{Name: "blksize", Value: strconv.Itoa(n.BlockSize)})

		case "timeout":
			v, err := strconv.Atoi(opt.Value)
			if err != nil {
				continue
			}
			n.TimeoutSeconds = clamp(v, MinTimeoutSeconds, MaxTimeoutSeconds)
			oack = append(oack, wire.Option{Name: "timeout", Value: strconv.Itoa(n.TimeoutSeconds)})

		case "tsize":
			n.TSizeRequested = true
			if isRead {
				n.TSize = fileSize
			} else if v, err := strconv.ParseInt(opt.Value, 10, 64); err == nil {
				n.TSize = v
			}
			oack = append(oack, wire.Option{Name: "tsize", Value: strconv.FormatInt(n.TSize, 10)})

		case "windowsize":
			v, err := strconv.Atoi(opt.Value)
			if err != nil {
				continue
			}
			n.WindowSize = clamp(v, MinWindowSize, MaxWindowSize)
			oack = append(oack, wire.Option{Name: "windowsize", Value: strconv.Itoa(n.WindowSize)})

		default:
			// Unrecognized option: dropped silently per RFC 2347.
		}
	}

	return n, oack
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
