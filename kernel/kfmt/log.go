package kfmt

import "io"

var (
	// debugEnabled controls whether Debugf produces any output.
	debugEnabled bool

	infoTagger  = lineTagger{sink: sinkWriter{}, tag: []byte("[info] ")}
	debugTagger = lineTagger{sink: sinkWriter{}, tag: []byte("[debug] ")}
)

// sinkWriter forwards writes to the active output sink or, if none is
// attached yet, to the early output buffer.
type sinkWriter struct{}

// Write implements io.Writer.
func (sinkWriter) Write(p []byte) (int, error) {
	if outputSink != nil {
		return outputSink.Write(p)
	}
	return earlyOutput.Write(p)
}

// lineTagger is an io.Writer that emits tag in front of every line written
// through it. Lines may span multiple calls to Write.
type lineTagger struct {
	sink io.Writer
	tag  []byte

	// midLine is set while the current line already carries its tag.
	midLine bool
}

// Write implements io.Writer. The returned byte count excludes the injected
// tags.
func (lt *lineTagger) Write(p []byte) (int, error) {
	var written int

	for len(p) != 0 {
		if !lt.midLine {
			if _, err := lt.sink.Write(lt.tag); err != nil {
				return written, err
			}
			lt.midLine = true
		}

		end := len(p)
		for i, ch := range p {
			if ch == '\n' {
				end = i + 1
				lt.midLine = false
				break
			}
		}

		n, err := lt.sink.Write(p[:end])
		written += n
		if err != nil {
			return written, err
		}
		p = p[end:]
	}

	return written, nil
}

// SetDebug enables or disables the output of Debugf.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// Infof formats its arguments like Printf and writes them to the output sink,
// prefixing every line with an "[info]" tag.
func Infof(format string, args ...interface{}) {
	Fprintf(&infoTagger, format, args...)
}

// Debugf behaves like Infof but uses a "[debug]" tag. Its output is discarded
// unless SetDebug(true) has been called.
func Debugf(format string, args ...interface{}) {
	if !debugEnabled {
		return
	}
	Fprintf(&debugTagger, format, args...)
}
