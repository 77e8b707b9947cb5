package models

import (
	"testing"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ExecutionTarget
	}{
		{"bare host", "build1.example.com", ExecutionTarget{Host: "build1.example.com"}},
		{"user and host", "root@10.0.0.4", ExecutionTarget{User: "root", Host: "10.0.0.4"}},
		{"host and port", "build1:2222", ExecutionTarget{Host: "build1", Port: 2222}},
		{"user host and port", "ci@build1:2222", ExecutionTarget{User: "ci", Host: "build1", Port: 2222}},
		{"local", "local", ExecutionTarget{Host: LocalTarget}},
		{"surrounding whitespace", "  root@build1  ", ExecutionTarget{User: "root", Host: "build1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.input)
			if err != nil {
				t.Fatalf("ParseTarget(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTarget(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTarget_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"empty user", "@build1"},
		{"empty host", "root@"},
		{"port not a number", "build1:ssh"},
		{"port zero", "build1:0"},
		{"port out of range", "build1:70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTarget(tt.input); err == nil {
				t.Errorf("ParseTarget(%q) should fail", tt.input)
			}
		})
	}
}

func TestExecutionTargetAddr(t *testing.T) {
	if got := (ExecutionTarget{Host: "build1"}).Addr(); got != "build1:22" {
		t.Errorf("Addr() = %q, want %q", got, "build1:22")
	}
	if got := (ExecutionTarget{Host: "build1", Port: 2222}).Addr(); got != "build1:2222" {
		t.Errorf("Addr() = %q, want %q", got, "build1:2222")
	}
}

func TestExecutionTargetStringRoundTrip(t *testing.T) {
	inputs := []string{"local", "build1", "root@build1", "build1:2222", "root@build1:2222"}
	for _, in := range inputs {
		target, err := ParseTarget(in)
		if err != nil {
			t.Fatalf("ParseTarget(%q) failed: %v", in, err)
		}
		if got := target.String(); got != in {
			t.Errorf("ParseTarget(%q).String() = %q", in, got)
		}
	}
}

func TestParseMappingList(t *testing.T) {
	entries, err := ParseMappingList("linux/amd64::root@hostA;linux/arm64/v8::root@hostB")
	if err != nil {
		t.Fatalf("ParseMappingList failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Architecture != "linux/amd64" || entries[0].Target.Host != "hostA" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Architecture != "linux/arm64/v8" || entries[1].Target.Host != "hostB" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[0].Target.User != "root" {
		t.Errorf("entry 0 user = %q, want %q", entries[0].Target.User, "root")
	}
}

func TestParseMappingList_SkipsBlankEntries(t *testing.T) {
	entries, err := ParseMappingList("linux/amd64::hostA; ; linux/arm64::hostB;")
	if err != nil {
		t.Fatalf("ParseMappingList failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestParseMappingList_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing separator", "linux/amd64=hostA"},
		{"empty architecture", "::hostA"},
		{"empty target", "linux/amd64::"},
		{"bad target port", "linux/amd64::hostA:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMappingList(tt.input); err == nil {
				t.Errorf("ParseMappingList(%q) should fail", tt.input)
			}
		})
	}
}

func TestHostMappingAccessors(t *testing.T) {
	entries, err := ParseMappingList("linux/amd64::hostA;linux/arm64/v8::hostB;linux/arm64/v8::hostC")
	if err != nil {
		t.Fatalf("ParseMappingList failed: %v", err)
	}
	mapping := HostMapping{Entries: entries}

	archs := mapping.Architectures()
	want := []string{"linux/amd64", "linux/arm64/v8", "linux/arm64/v8"}
	if len(archs) != len(want) {
		t.Fatalf("Architectures() = %v, want %v", archs, want)
	}
	for i := range want {
		if archs[i] != want[i] {
			t.Errorf("Architectures()[%d] = %q, want %q", i, archs[i], want[i])
		}
	}

	matches := mapping.ByArch("linux/arm64/v8")
	if len(matches) != 2 {
		t.Fatalf("ByArch returned %d entries, want 2", len(matches))
	}
	if matches[0].Target.Host != "hostB" || matches[1].Target.Host != "hostC" {
		t.Errorf("ByArch order = %q, %q", matches[0].Target.Host, matches[1].Target.Host)
	}

	if got := mapping.ByArch("linux/riscv64"); len(got) != 0 {
		t.Errorf("ByArch for unmapped arch = %v, want empty", got)
	}
}
