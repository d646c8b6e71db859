package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestCheckDNI_RejectsMalformed(t *testing.T) {
	for _, arg := range []string{"123", "abcdefgh", "123456789"} {
		t.Run(arg, func(t *testing.T) {
			cmd := newCheckDNICmd()
			cmd.SetArgs([]string{arg})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			if err == nil || !strings.Contains(err.Error(), "invalid DNI") {
				t.Errorf("Execute(%q) error = %v, want invalid DNI", arg, err)
			}
		})
	}
}

func TestCheckDNI_NeedsOneArg(t *testing.T) {
	cmd := newCheckDNICmd()
	cmd.SetArgs(nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Error("Execute() without args should fail")
	}
}
