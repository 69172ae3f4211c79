package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medication-safety-cds/internal/domain"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSON_Default", func(t *testing.T) {
		logger, err := NewLogger(domain.LoggingConfig{Level: "debug"})
		require.NoError(t, err)

		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
		assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
		assert.Equal(t, os.Stdout, logger.Out)
	})

	t.Run("Text_To_Stderr", func(t *testing.T) {
		logger, err := NewLogger(domain.LoggingConfig{Level: "warn", Format: "TEXT", Output: "stderr"})
		require.NoError(t, err)

		assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
		assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
		assert.Equal(t, os.Stderr, logger.Out)
	})

	t.Run("Unknown_Level_Falls_Back_To_Info", func(t *testing.T) {
		logger, err := NewLogger(domain.LoggingConfig{Level: "chatty"})
		require.NoError(t, err)
		assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	})

	t.Run("File_Output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cds.log")
		logger, err := NewLogger(domain.LoggingConfig{Level: "info", Output: path})
		require.NoError(t, err)

		logger.WithField("patient_id", "p-1").Info("Safety check completed")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Safety check completed")
	})

	t.Run("Unwritable_File", func(t *testing.T) {
		_, err := NewLogger(domain.LoggingConfig{Output: filepath.Join(t.TempDir(), "missing", "cds.log")})
		assert.Error(t, err)
	})
}
