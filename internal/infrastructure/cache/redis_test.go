package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportKey(t *testing.T) {
	tests := []struct {
		impact string
		major  string
		want   string
	}{
		{"", "", "report:sys:all:ALL"},
		{"Moderate", "", "report:sys:moderate:ALL"},
		{"high", "ac-2", "report:sys:high:AC-2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReportKey("sys", tt.impact, tt.major))
	}
}

func TestKeyPrefix(t *testing.T) {
	c := &RedisCache{keyPrefix: "stigwatch:"}
	assert.Equal(t, "stigwatch:report:x", c.key("report:x"))
}
