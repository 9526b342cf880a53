package logging

import "github.com/sirupsen/logrus"

// Logrus adapts a *logrus.Logger to the Logger interface. The PSR-3 "notice"
// level has no logrus equivalent and is logged at Info.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus wraps l, or a fresh default logrus.Logger when l is nil.
func NewLogrus(l *logrus.Logger) *Logrus {
	if l == nil {
		l = logrus.New()
	}
	return &Logrus{entry: logrus.NewEntry(l)}
}

func (l *Logrus) with(fields Fields) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(fields))
}

func (l *Logrus) Debug(msg string, f Fields)     { l.with(f).Debug(msg) }
func (l *Logrus) Info(msg string, f Fields)      { l.with(f).Info(msg) }
func (l *Logrus) Notice(msg string, f Fields)    { l.with(f).Info(msg) }
func (l *Logrus) Warning(msg string, f Fields)   { l.with(f).Warn(msg) }
func (l *Logrus) Error(msg string, f Fields)     { l.with(f).Error(msg) }
func (l *Logrus) Critical(msg string, f Fields)  { l.with(f).Error(msg) }
// Alert and Emergency have no logrus equivalent more severe than Error;
// logrus's Fatal/Panic levels terminate the process, which would violate
// logging's ambient, side-effect-free contract, so both log at Error.
func (l *Logrus) Alert(msg string, f Fields)     { l.with(f).Error(msg) }
func (l *Logrus) Emergency(msg string, f Fields) { l.with(f).Error(msg) }

var _ Logger = (*Logrus)(nil)
