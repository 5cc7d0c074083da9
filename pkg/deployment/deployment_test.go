package deployment

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doseidotio/doseid/pkg/store"
)

func TestFindAvailableHostPort(t *testing.T) {
	for i := 0; i < 10; i++ {
		port, err := FindAvailableHostPort()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, port, int16(10000))
		assert.LessOrEqual(t, port, int16(20000))
	}
}

func TestImageTag(t *testing.T) {
	d := &store.Deployment{
		ID:        uuid.New(),
		ServiceID: uuid.New(),
		OwnerID:   uuid.New(),
	}
	assert.Equal(t, fmt.Sprintf("%s/%s:%s", d.OwnerID, d.ServiceID, d.ID), ImageTag(d))
}
