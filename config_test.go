package petpost_test

import (
	"testing"

	"github.com/nyaruka/petpost"
	"github.com/stretchr/testify/assert"
)

var invalidConfigTestCases = []struct {
	config        *petpost.Config
	expectedError string
}{
	{config: &petpost.Config{DynamoTable: "", S3Bucket: "pets", Redis: "redis://localhost:6379/0", PostTime: "10:00"}, expectedError: "Field validation for 'DynamoTable' failed on the 'required' tag"},
	{config: &petpost.Config{DynamoTable: "PetItems", S3Bucket: "", Redis: "redis://localhost:6379/0", PostTime: "10:00"}, expectedError: "Field validation for 'S3Bucket' failed on the 'required' tag"},
	{config: &petpost.Config{DynamoTable: "PetItems", S3Bucket: "pets", Redis: ":foo", PostTime: "10:00"}, expectedError: "Field validation for 'Redis' failed on the 'url' tag"},
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range invalidConfigTestCases {
		err := tc.config.Validate()
		if assert.Error(t, err, "expected error for config %v", tc.config) {
			assert.Contains(t, err.Error(), tc.expectedError, "error mismatch for config %v", tc.config)
		}
	}

	config := petpost.NewConfig()
	assert.NoError(t, config.Validate())
}

func TestParsePostTime(t *testing.T) {
	config := petpost.NewConfig()

	hour, minute, err := config.ParsePostTime()
	assert.NoError(t, err)
	assert.Equal(t, 10, hour)
	assert.Equal(t, 0, minute)

	config.PostTime = "23:59"
	hour, minute, err = config.ParsePostTime()
	assert.NoError(t, err)
	assert.Equal(t, 23, hour)
	assert.Equal(t, 59, minute)

	for _, tc := range []string{"", "10", "24:00", "10:60", "ten:30", "10:30:00"} {
		config.PostTime = tc
		_, _, err = config.ParsePostTime()
		assert.Error(t, err, "expected error for post time %s", tc)
	}
}
