package queue

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// zerologAdapter routes asynq server logs through zerolog.
type zerologAdapter struct {
	log zerolog.Logger
}

// NewLogger adapts logger to asynq.Logger.
func NewLogger(logger zerolog.Logger) asynq.Logger {
	return zerologAdapter{log: logger.With().Str("subsystem", "asynq").Logger()}
}

func (z zerologAdapter) Debug(args ...any) { z.log.Debug().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Info(args ...any)  { z.log.Info().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Warn(args ...any)  { z.log.Warn().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Error(args ...any) { z.log.Error().Msg(fmt.Sprint(args...)) }

// Fatal logs at fatal level, which exits the process.
func (z zerologAdapter) Fatal(args ...any) { z.log.Fatal().Msg(fmt.Sprint(args...)) }
