package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ekurs/phrasevault/internal/flagx"
	"github.com/ekurs/phrasevault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN         string         `json:"database_dsn"`
	SecretKey           string         `json:"secret_key"`
	IdentifierKey       string         `json:"identifier_key"`
	SessionTTL          timex.Duration `json:"session_ttl"`
	SessionMaxExtension timex.Duration `json:"session_max_extension"`
	TranscriptTTL       timex.Duration `json:"transcript_ttl"`
	SweepInterval       timex.Duration `json:"sweep_interval"`
	ServerIdentity      string         `json:"server_identity"`
	OprfSeed            string         `json:"oprf_seed"`
	ServerPrivateKey    string         `json:"server_private_key"`
	ServerPublicKey     string         `json:"server_public_key"`
	S3RootUser          string         `json:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Region            string         `json:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.IdentifierKey = c.IdentifierKey
	config.SessionTTL = time.Duration(c.SessionTTL.Duration)
	config.SessionMaxExtension = time.Duration(c.SessionMaxExtension.Duration)
	config.TranscriptTTL = time.Duration(c.TranscriptTTL.Duration)
	config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	config.ServerIdentity = c.ServerIdentity
	config.OprfSeed = c.OprfSeed
	config.ServerPrivateKey = c.ServerPrivateKey
	config.ServerPublicKey = c.ServerPublicKey
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
