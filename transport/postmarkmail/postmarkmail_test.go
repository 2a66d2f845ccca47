package postmarkmail_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/transport/postmarkmail"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()

		tr, err := postmarkmail.New(postmarkmail.Config{
			ServerToken:  "test-server-token",
			AccountToken: "test-account-token",
			SenderEmail:  "events@example.com",
		})
		require.NoError(t, err)
		assert.NotNil(t, tr)
	})

	tests := []struct {
		name    string
		config  postmarkmail.Config
		message string
	}{
		{
			name: "empty server token",
			config: postmarkmail.Config{
				AccountToken: "test-account-token",
				SenderEmail:  "events@example.com",
			},
			message: "ServerToken is required",
		},
		{
			name: "empty account token",
			config: postmarkmail.Config{
				ServerToken: "test-server-token",
				SenderEmail: "events@example.com",
			},
			message: "AccountToken is required",
		},
		{
			name: "missing sender",
			config: postmarkmail.Config{
				ServerToken:  "test-server-token",
				AccountToken: "test-account-token",
			},
			message: "SenderEmail is required",
		},
		{
			name: "malformed sender",
			config: postmarkmail.Config{
				ServerToken:  "test-server-token",
				AccountToken: "test-account-token",
				SenderEmail:  "not-an-address",
			},
			message: "SenderEmail must be a valid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr, err := postmarkmail.New(tt.config)
			assert.Nil(t, tr)
			require.Error(t, err)
			assert.ErrorIs(t, err, postmarkmail.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
