package driver

import (
	"testing"

	"github.com/go-rod/rod/lib/input"
)

func TestKeyFromName(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    input.Key
		wantErr bool
	}{
		{"enter", "Enter", input.Enter, false},
		{"enter lowercase", "enter", input.Enter, false},
		{"return alias", "Return", input.Enter, false},
		{"escape alias", "esc", input.Escape, false},
		{"arrow down", "ArrowDown", input.ArrowDown, false},
		{"bare down", "down", input.ArrowDown, false},
		{"page down", "PageDown", input.PageDown, false},
		{"space", "Space", input.Key(' '), false},
		{"single char", "a", input.Key('a'), false},
		{"padded", " Tab ", input.Tab, false},
		{"unknown", "Fn-Lock", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keyFromName(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("keyFromName(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("keyFromName(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
