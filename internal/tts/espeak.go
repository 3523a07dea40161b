// Package tts announces detections through eSpeak NG. Synthesis itself
// is entirely the engine's business; this is only the binding.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

int
espeak_say(const char *voice, const char *text)
{
	if (!text)
	{ return -1; }

	espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);

	if (voice && espeak_SetVoiceByName(voice) != EE_OK)
	{
		espeak_Terminate();
		return -2;
	}

	espeak_Synth(text, strlen(text) + 1, 0, 0, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// DefaultVoice is the eSpeak voice used when none is configured.
const DefaultVoice = "en"

// Speak synthesizes text and blocks until playback finishes.
func Speak(voice, text string) error {
	if text == "" {
		return nil
	}
	if voice == "" {
		voice = DefaultVoice
	}

	cvoice := C.CString(voice)
	defer C.free(unsafe.Pointer(cvoice))

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	rc := C.espeak_say(cvoice, ctext)
	switch rc {
	case 0:
		return nil
	case -2:
		return fmt.Errorf("espeak: unknown voice %q", voice)
	default:
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
}
