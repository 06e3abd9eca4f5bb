package transcript

import "github.com/charmbracelet/log"

// LogSink writes final phrases and notes to a logger. It backs the plain,
// non-interactive output mode.
type LogSink struct {
	Logger *log.Logger
}

// UpsertPhrase logs final phrases only.
func (l LogSink) UpsertPhrase(phraseID, speaker, text string, isFinal bool) {
	if !isFinal {
		return
	}
	l.Logger.Info(text, "speaker", speaker)
}

// AppendSystemNote implements Sink.
func (l LogSink) AppendSystemNote(text string, isError bool) {
	if isError {
		l.Logger.Error(text)
		return
	}
	l.Logger.Info(text)
}

// MarkPlaying implements Sink.
func (l LogSink) MarkPlaying(phraseID string, playing bool) {
	if playing {
		l.Logger.Debug("Playing", "phrase", phraseID)
	}
}
