package asr

// Realtime protocol message names.
const (
	msgStartRecognition     = "StartRecognition"
	msgRecognitionStarted   = "RecognitionStarted"
	msgAudioAdded           = "AudioAdded"
	msgAddPartialTranscript = "AddPartialTranscript"
	msgAddTranscript        = "AddTranscript"
	msgEndOfStream          = "EndOfStream"
	msgEndOfTranscript      = "EndOfTranscript"
	msgError                = "Error"
	msgWarning              = "Warning"
	msgInfo                 = "Info"
)

type audioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type transcriptionConfig struct {
	Language       string  `json:"language"`
	EnablePartials bool    `json:"enable_partials,omitempty"`
	MaxDelay       float64 `json:"max_delay,omitempty"`
}

type startRecognitionMessage struct {
	Message             string              `json:"message"`
	AudioFormat         audioFormat         `json:"audio_format"`
	TranscriptionConfig transcriptionConfig `json:"transcription_config"`
}

type endOfStreamMessage struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

// serverMessage is the superset of fields across inbound message types.
type serverMessage struct {
	Message  string `json:"message"`
	SeqNo    int    `json:"seq_no,omitempty"`
	Type     string `json:"type,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Metadata struct {
		Transcript string  `json:"transcript"`
		StartTime  float64 `json:"start_time"`
		EndTime    float64 `json:"end_time"`
	} `json:"metadata,omitempty"`
}
