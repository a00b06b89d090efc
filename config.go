package petpost

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nyaruka/ezconf"
	validator "gopkg.in/go-playground/validator.v9"
)

var validate = validator.New()

// Config is our top level configuration object
type Config struct {
	Backend string `help:"the backend that will be used for item and image storage (currently only aws is supported)"`

	SentryDSN string `help:"the DSN used for logging errors to Sentry"`
	Address   string `help:"the network interface address the server will bind to"`
	Port      int    `help:"the port the server will listen on"`

	AWSAccessKeyID     string `help:"the access key id to use when authenticating AWS"`
	AWSSecretAccessKey string `help:"the secret access key to use when authenticating AWS"`
	AWSRegion          string `help:"the AWS region items and images live in"`
	AWSUseCredChain    bool   `help:"whether to use the AWS credentials chain instead of explicit keys"`

	DynamoTable string `help:"the DynamoDB table holding item records"  validate:"required"`
	S3Endpoint  string `help:"the S3 endpoint images will be written to"`
	S3Bucket    string `help:"the S3 bucket images will be written to"  validate:"required"`
	S3Minio     bool   `help:"whether the S3 endpoint is a Minio instance (forces path style addressing)"`

	Redis      string `help:"URL describing how to connect to Redis"  validate:"url"`
	StagingDir string `help:"the local directory where submissions are staged before upload (needs to be writable)"`

	WebhookURL string `help:"the channel webhook URL posts are published to"`
	PostTime   string `help:"the local wall clock time (HH:MM) the daily post goes out at"`

	AuthToken      string `help:"the authentication token needed to trigger a post on demand"`
	StatusUsername string `help:"the username that is needed to authenticate against the /status endpoint"`
	StatusPassword string `help:"the password that is needed to authenticate against the /status endpoint"`

	LogLevel string `help:"the logging level the server should use"`
	Version  string `help:"the version that will be used in request and response headers"`
}

// NewConfig returns a new default configuration object
func NewConfig() *Config {
	return &Config{
		Backend: "aws",
		Address: "",
		Port:    8080,

		AWSAccessKeyID:     "",
		AWSSecretAccessKey: "",
		AWSRegion:          "us-east-1",
		AWSUseCredChain:    false,

		DynamoTable: "PetItems",
		S3Endpoint:  "https://s3.amazonaws.com",
		S3Bucket:    "petpost-images",
		S3Minio:     false,

		Redis:      "redis://localhost:6379/0",
		StagingDir: "/var/spool/petpost",

		WebhookURL: "",
		PostTime:   "10:00",

		LogLevel: "info",
		Version:  "Dev",
	}
}

// LoadConfig loads our configuration from the passed in filename
func LoadConfig(filename string) *Config {
	config := NewConfig()
	loader := ezconf.NewLoader(
		config,
		"petpost", "Petpost - posts a new pet from the collection every day",
		[]string{filename},
	)

	loader.MustLoad()
	return config
}

// Validate validates the config
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if _, _, err := c.ParsePostTime(); err != nil {
		return err
	}
	return nil
}

// ParsePostTime parses our post schedule into an hour and minute of the day
func (c *Config) ParsePostTime() (int, int, error) {
	parts := strings.Split(c.PostTime, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid post time '%s', must be HH:MM", c.PostTime)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid post time hour '%s'", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid post time minute '%s'", parts[1])
	}

	return hour, minute, nil
}
