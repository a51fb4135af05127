// Package mixer is the local control surface: PulseAudio volumes and loopback
// routing driven through pactl.
//
// # Overview
//
// The mixer manages one input source (a turntable line-in) and one output
// sink (a Bluetooth speaker), with an optional module-loopback routing audio
// between them. It exposes the HTTP API the agent forwards tunnel requests
// to, and can also be driven directly on the LAN.
//
// # Levels
//
// Set operations clamp rather than reject:
//
//	input   0..150  (source volume, allows boost)
//	output  0..100  (sink volume)
//	latency 10..100 (loopback latency, milliseconds)
//
// The response echoes the requested value, not the clamped one, matching the
// established API contract.
//
// # Loopback Lifecycle
//
// Enabling routing loads module-loopback with the configured source, sink,
// and current latency; disabling unloads it by module ID. Latency changes and
// presets reload an active loopback so the new latency takes effect.
// DetectLoopback adopts a module that survived a previous process, so a
// restart never double-loads.
//
// # Testing
//
// All pactl invocations go through the Runner interface; tests substitute a
// scripted fake, production uses ExecRunner with a per-command timeout.
package mixer
