package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateColumns(t *testing.T) {
	rules := Rules{
		Columns: map[string]string{
			"serial":   `admin || "it" in groups`,
			"cost":     `admin`,
			"assignee": ``,
		},
	}

	tests := []struct {
		name string
		caps Capabilities
		want map[string]bool
	}{
		{
			name: "admin sees all",
			caps: Capabilities{UserID: "u1", Admin: true},
			want: map[string]bool{"serial": true, "cost": true, "assignee": true, "name": true},
		},
		{
			name: "group member",
			caps: Capabilities{UserID: "u2", Groups: []string{"it", "nursing"}},
			want: map[string]bool{"serial": true, "cost": false, "assignee": true, "name": true},
		},
		{
			name: "no groups",
			caps: Capabilities{UserID: "u3"},
			want: map[string]bool{"serial": false, "cost": false, "assignee": true, "name": true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGate(rules, tt.caps)
			require.NoError(t, err)
			for col, want := range tt.want {
				assert.Equal(t, want, g.ColumnAllowed(col), col)
			}
		})
	}
}

func TestGateActions(t *testing.T) {
	rules := Rules{Actions: map[string]string{"delete": `admin`}}

	g, err := NewGate(rules, Capabilities{UserID: "u1"})
	require.NoError(t, err)
	assert.ErrorIs(t, g.Allow("delete"), ErrForbidden)
	assert.NoError(t, g.Allow("export"))

	g, err = NewGate(rules, Capabilities{UserID: "u1", Admin: true})
	require.NoError(t, err)
	assert.NoError(t, g.Allow("delete"))
}

func TestGateRejectsBadRules(t *testing.T) {
	_, err := NewGate(Rules{Columns: map[string]string{"x": `admin +`}}, Capabilities{})
	assert.ErrorContains(t, err, `column "x"`)

	_, err = NewGate(Rules{Actions: map[string]string{"delete": `user`}}, Capabilities{})
	assert.Error(t, err, "non-bool rule")
}

func TestNilGateAllows(t *testing.T) {
	var g *Gate
	assert.True(t, g.ColumnAllowed("anything"))
	assert.NoError(t, g.Allow("delete"))
	assert.Equal(t, Capabilities{}, g.Capabilities())
}
