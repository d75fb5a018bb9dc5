package logging

import "testing"

func TestParseSeverity(t *testing.T) {
	cases := map[string]int{
		"error":   SyslogError,
		"warning": SyslogWarning,
		"info":    SyslogInfo,
		"bogus":   0,
	}
	for name, want := range cases {
		if got := ParseSeverity(name); got != want {
			t.Errorf("ParseSeverity(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestShouldSend(t *testing.T) {
	c := &SyslogClient{MinSeverity: SyslogWarning}
	if !c.ShouldSend(SyslogError) {
		t.Error("error should pass a warning-level filter")
	}
	if !c.ShouldSend(SyslogWarning) {
		t.Error("warning should pass a warning-level filter")
	}
	if c.ShouldSend(SyslogInfo) {
		t.Error("info should not pass a warning-level filter")
	}

	unfiltered := &SyslogClient{}
	if !unfiltered.ShouldSend(SyslogInfo) {
		t.Error("zero MinSeverity should pass everything")
	}
}
