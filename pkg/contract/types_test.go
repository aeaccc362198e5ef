package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginInfoValidate(t *testing.T) {
	tests := []struct {
		name    string
		info    PluginInfo
		wantErr string
	}{
		{
			name: "valid",
			info: PluginInfo{Name: "demo", Version: "1.0.0", Management: Management{Menus: []Menu{{Path: "/", Name: "Demo"}}}},
		},
		{
			name: "no menus",
			info: PluginInfo{Name: "demo", Version: "1.0.0"},
		},
		{
			name:    "missing name",
			info:    PluginInfo{Version: "1.0.0"},
			wantErr: "PluginInfo.Name is required",
		},
		{
			name:    "relative menu path",
			info:    PluginInfo{Name: "demo", Version: "1", Management: Management{Menus: []Menu{{Path: "admin", Name: "Admin"}}}},
			wantErr: "must start with",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPluginInfoDecodesMenusInOrder(t *testing.T) {
	raw := `{"name":"demo","version":"0.1.0","management":{"menus":[
		{"path":"/a","name":"A"},{"path":"/b","name":"B"},{"path":"/c","name":"C"}]}}`

	var info PluginInfo
	require.NoError(t, json.Unmarshal([]byte(raw), &info))
	require.NoError(t, info.Validate())

	assert.Equal(t, []Menu{{"/a", "A"}, {"/b", "B"}, {"/c", "C"}}, info.Management.Menus)
}

func TestValidateMenus(t *testing.T) {
	assert.NoError(t, ValidateMenus(nil))
	assert.NoError(t, ValidateMenus([]Menu{{Path: "/x", Name: "X"}}))

	err := ValidateMenus([]Menu{{Path: "/x", Name: "X"}, {Path: "/y"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "menu 1")
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, (&Request{URL: "/admin/editor"}).Validate())
	assert.Error(t, (&Request{}).Validate())
}

func TestNewHostInfo(t *testing.T) {
	info := NewHostInfo("1.2.3")
	assert.Equal(t, Protocol, info.Protocol)
	assert.Equal(t, "1.2.3", info.Version)
}
