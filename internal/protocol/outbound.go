package protocol

// Connect identifies the client and joins a presentation.
type Connect struct {
	Type             Type   `json:"type"`
	PresentationCode string `json:"presentationCode"`
	LanguageCode     string `json:"languageCode"`
	AccessKey        string `json:"accessKey,omitempty"`
}

// NewConnect builds a connect frame. An empty accessKey is omitted.
func NewConnect(presentationCode, languageCode, accessKey string) Connect {
	return Connect{
		Type:             TypeConnect,
		PresentationCode: presentationCode,
		LanguageCode:     languageCode,
		AccessKey:        accessKey,
	}
}

// Change switches the translation language of a live session.
type Change struct {
	Type         Type   `json:"type"`
	LanguageCode string `json:"languageCode"`
}

// NewChange builds a change frame.
func NewChange(languageCode string) Change {
	return Change{Type: TypeChange, LanguageCode: languageCode}
}

// Voice turns synthesized speech delivery on or off.
type Voice struct {
	Type    Type `json:"type"`
	Enabled bool `json:"enabled"`
}

// NewVoice builds a voice frame.
func NewVoice(enabled bool) Voice {
	return Voice{Type: TypeVoice, Enabled: enabled}
}

// Bare is a frame that carries only its type.
type Bare struct {
	Type Type `json:"type"`
}

// NewDisconnect builds a disconnect frame.
func NewDisconnect() Bare {
	return Bare{Type: TypeDisconnect}
}

// NewEcho builds the heartbeat frame.
func NewEcho() Bare {
	return Bare{Type: TypeEcho}
}
