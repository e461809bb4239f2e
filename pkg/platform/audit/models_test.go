package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventCategory(t *testing.T) {
	assert.Equal(t, CategoryCompliance, EventFundsWithdrawn.Category())
	assert.Equal(t, CategorySecurity, EventUnsafeUploadBlocked.Category())
	assert.Equal(t, CategoryOperations, EventSweepCompleted.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("something_new").Category())
}
