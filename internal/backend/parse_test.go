package backend

import "testing"

func TestParseModuleID(t *testing.T) {
	id, err := parseModuleID("536870913\n")
	if err != nil {
		t.Fatalf("parseModuleID: %v", err)
	}
	if id != 536870913 {
		t.Errorf("id = %d, want 536870913", id)
	}

	if _, err := parseModuleID("Failure: Module initialization failed"); err == nil {
		t.Error("expected error for non-numeric output")
	}
}

func TestParseShortModules(t *testing.T) {
	out := "1\tmodule-device-restore\t\n" +
		"23\tmodule-null-sink\tsink_name=MusicSink sink_properties=device.description=\"Music\"\n" +
		"24\tmodule-loopback\tsource=MusicSink.monitor sink=alsa_output.pci-0000_00_1f.3.analog-stereo\n" +
		"garbage line without tabs\n" +
		"\n"

	entries := parseShortModules(out)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[1].ID != 23 || entries[1].Name != "module-null-sink" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if name, ok := parseModuleArg(entries[1].Args, "sink_name"); !ok || name != "MusicSink" {
		t.Errorf("sink_name = %q, ok=%v", name, ok)
	}
}

func TestParseLoopbackArgs(t *testing.T) {
	sink, device, ok := parseLoopbackArgs("source=MusicSink.monitor sink=alsa_output.usb-headset latency_msec=20")
	if !ok {
		t.Fatal("expected ok")
	}
	if sink != "MusicSink" || device != "alsa_output.usb-headset" {
		t.Errorf("got (%q, %q)", sink, device)
	}

	// A loopback whose source is not a sink monitor is not ours.
	if _, _, ok := parseLoopbackArgs("source=mic_input sink=alsa_output.usb-headset"); ok {
		t.Error("expected !ok for non-monitor source")
	}
	if _, _, ok := parseLoopbackArgs("sink=alsa_output.usb-headset"); ok {
		t.Error("expected !ok with missing source")
	}
}

func TestParseSinks(t *testing.T) {
	out := `Sink #1
	State: RUNNING
	Name: alsa_output.pci-0000_00_1f.3.analog-stereo
	Description: Built-in Audio Analog Stereo
	Mute: no
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB

Sink #7
	State: IDLE
	Name: MusicSink
	Description: Music
	Mute: yes
	Volume: front-left: 32768 / 50% / -18.06 dB,   front-right: 32768 / 50% / -18.06 dB
`
	sinks := parseSinks(out)
	if len(sinks) != 2 {
		t.Fatalf("expected 2 sinks, got %d: %+v", len(sinks), sinks)
	}
	if sinks[0].Name != "alsa_output.pci-0000_00_1f.3.analog-stereo" || sinks[0].Muted || sinks[0].Volume != 1.0 {
		t.Errorf("sink 0 = %+v", sinks[0])
	}
	if sinks[1].Name != "MusicSink" || !sinks[1].Muted || sinks[1].Volume != 0.5 {
		t.Errorf("sink 1 = %+v", sinks[1])
	}
}

func TestFirstPercentage(t *testing.T) {
	if pct, ok := firstPercentage("Volume: front-left: 49152 / 75% / -7.53 dB"); !ok || pct != 75 {
		t.Errorf("got (%d, %v), want (75, true)", pct, ok)
	}
	if _, ok := firstPercentage("Volume: (no channels)"); ok {
		t.Error("expected !ok without a percentage token")
	}
}
