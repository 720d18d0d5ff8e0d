// Package tts reads assistant replies aloud through espeak-ng.
package tts

import "errors"

var ErrUnavailable = errors.New("speech output not built in (rebuild with -tags espeak)")
