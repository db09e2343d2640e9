package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParticipantConfig_FillsDefaults(t *testing.T) {
	c := DefaultParticipantConfig()
	assert.Equal(t, DefaultRegistryURI, c.Middleware.RegistryURI)
	assert.Equal(t, "INFO", c.Logging.Level)
	assert.Equal(t, 5000, c.Healthcheck.IntervalMs)
}

func TestValidate_EmptyParticipantName_IsConfigurationError(t *testing.T) {
	c := DefaultParticipantConfig()
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ConfigurationError")
}

func TestValidate_BlankRegistryURI_FilledWithDefault(t *testing.T) {
	c := &ParticipantConfig{ParticipantName: "Ecu1"}
	require.NoError(t, c.Validate())
	assert.Equal(t, DefaultRegistryURI, c.Middleware.RegistryURI)
}

func TestParseParticipantConfig_YAML(t *testing.T) {
	data := []byte(`
participantName: Ecu1
middleware:
  registryUri: silkit://10.0.0.5:8500
canControllers:
  - name: CAN1
    networkName: Powertrain
logging:
  level: DEBUG
`)
	c, err := ParseParticipantConfig(data)
	require.NoError(t, err)
	assert.Equal(t, "Ecu1", c.ParticipantName)
	assert.Equal(t, "silkit://10.0.0.5:8500", c.Middleware.RegistryURI)
	require.Len(t, c.CanControllers, 1)
	assert.Equal(t, "CAN1", c.CanControllers[0].Name)
	assert.Equal(t, "DEBUG", c.Logging.Level)
}

func TestParseParticipantConfig_MissingParticipantName_Errors(t *testing.T) {
	_, err := ParseParticipantConfig([]byte(`middleware: { registryUri: silkit://localhost:8500 }`))
	assert.Error(t, err)
}

func TestLoadParticipantConfig_MissingFile_Errors(t *testing.T) {
	_, err := LoadParticipantConfig("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestGetSetReset_GlobalConfig(t *testing.T) {
	defer Reset()

	Reset()
	assert.Equal(t, DefaultRegistryURI, Get().Middleware.RegistryURI)

	c := DefaultParticipantConfig()
	c.ParticipantName = "Ecu7"
	Set(c)
	assert.Equal(t, "Ecu7", Get().ParticipantName)

	Reset()
	assert.Empty(t, Get().ParticipantName)
}

func TestHealthcheckInterval(t *testing.T) {
	c := &ParticipantConfig{Healthcheck: HealthcheckConfig{IntervalMs: 2500}}
	assert.Equal(t, 2500e6, float64(c.HealthcheckInterval()))
}
