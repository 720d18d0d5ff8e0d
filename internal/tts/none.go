//go:build !espeak

package tts

func Speak(text, lang string) error {
	if text == "" {
		return nil
	}
	return ErrUnavailable
}
