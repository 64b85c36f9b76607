package vertex

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextProject_RoundRobins(t *testing.T) {
	c := New(&ServiceAccount{}, []string{"proj-a", "proj-b", "proj-c"}, "us-central1", "model-x", "regional")

	got := []string{c.NextProject(), c.NextProject(), c.NextProject(), c.NextProject()}
	assert.Equal(t, []string{"proj-a", "proj-b", "proj-c", "proj-a"}, got)
}

func TestNextProject_EmptyListReturnsEmptyString(t *testing.T) {
	c := New(&ServiceAccount{}, nil, "us-central1", "model-x", "regional")
	assert.Equal(t, "", c.NextProject())
}

func TestEndpointHost_Regional(t *testing.T) {
	c := New(&ServiceAccount{}, []string{"p"}, "us-central1", "model-x", "regional")
	assert.Equal(t, "https://us-central1-aiplatform.googleapis.com", c.endpointHost("p"))
}

func TestEndpointHost_GlobalMode(t *testing.T) {
	c := New(&ServiceAccount{}, []string{"p"}, "us-central1", "model-x", "global")
	assert.Equal(t, "https://aiplatform.googleapis.com", c.endpointHost("p"))
}

func TestEndpointHost_GlobalLocation(t *testing.T) {
	c := New(&ServiceAccount{}, []string{"p"}, "global", "model-x", "regional")
	assert.Equal(t, "https://aiplatform.googleapis.com", c.endpointHost("p"))
}

func TestParseServiceAccountJSON(t *testing.T) {
	raw := `{"client_email":"svc@project.iam.gserviceaccount.com","private_key":"-----BEGIN KEY-----","token_uri":"https://oauth2.googleapis.com/token"}`
	sa, err := ParseServiceAccountJSON(raw)
	assert.NoError(t, err)
	assert.Equal(t, "svc@project.iam.gserviceaccount.com", sa.ClientEmail)
	assert.Equal(t, "https://oauth2.googleapis.com/token", sa.TokenURI)
}

func TestParseServiceAccountJSON_Malformed(t *testing.T) {
	_, err := ParseServiceAccountJSON("not json")
	assert.Error(t, err)
}

func TestErrNonJSON_WrapsWithErrorsIs(t *testing.T) {
	var gr generateContentResponse
	decodeErr := json.Unmarshal([]byte("not json"), &gr)
	wrapped := fmt.Errorf("%w: %s", ErrNonJSON, decodeErr)
	assert.True(t, errors.Is(wrapped, ErrNonJSON))
}
