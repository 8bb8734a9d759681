package model

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{"viewer", RoleViewer, false},
		{"", "", true},
		{"Admin", "", true},
		{"superuser", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseRole(%q) should fail", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRole(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEntryType(t *testing.T) {
	if _, err := ParseEntryType("credit"); err != nil {
		t.Errorf("credit should parse: %v", err)
	}
	if _, err := ParseEntryType("debit"); err != nil {
		t.Errorf("debit should parse: %v", err)
	}
	if _, err := ParseEntryType("transfer"); err == nil {
		t.Error("transfer should not parse")
	}
	if _, err := ParseEntryType("CREDIT"); err == nil {
		t.Error("entry type should be case sensitive")
	}
}

func TestParseActionType(t *testing.T) {
	for _, valid := range []string{"CREATE", "UPDATE", "DELETE", "LOGIN", "LOGOUT"} {
		if _, err := ParseActionType(valid); err != nil {
			t.Errorf("%s should parse: %v", valid, err)
		}
	}
	if _, err := ParseActionType("create"); err == nil {
		t.Error("action type should be case sensitive")
	}
	if _, err := ParseActionType("READ"); err == nil {
		t.Error("READ should not parse")
	}
}

func TestActionTypeValid(t *testing.T) {
	if !ActionLogin.Valid() {
		t.Error("LOGIN should be valid")
	}
	if ActionType("DROP").Valid() {
		t.Error("DROP should be invalid")
	}
}
