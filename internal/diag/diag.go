// Package diag is the host-side diagnostic phase runner `scarlettctl
// doctor` uses to explain why an interface isn't responding: host CPU/mem
// (spec.md's ambient stack, via gopsutil), whether a Scarlett vendor
// interface is visible to lsusb, and whether the kernel ALSA USB audio
// module (snd_usb_audio) is loaded.
//
// Grounded on the teacher's phase-based diagnostics
// (internal/analyzer/phases/diagnostics.go): one DiagnosticResult per
// phase with a Data bag and an Errors slice, run in sequence and printed
// or marshalled as JSON.
package diag

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/focusrite-scarlett/ctld/internal/scarlett/registry"
)

// Result is one diagnostic phase's outcome.
type Result struct {
	Phase     string                 `json:"phase"`
	Timestamp string                 `json:"timestamp"`
	Success   bool                   `json:"success"`
	Data      map[string]interface{} `json:"data"`
	Errors    []string               `json:"errors,omitempty"`
}

// Report is the full doctor run: every phase's Result in order.
type Report struct {
	Results []Result `json:"results"`
}

// String renders the report the way a human reads a terminal, not the way
// a machine parses JSON; use JSON() for the latter.
func (r Report) String() string {
	var b strings.Builder
	for _, res := range r.Results {
		status := "ok"
		if !res.Success {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s\n", status, res.Phase)
		for k, v := range res.Data {
			fmt.Fprintf(&b, "  %s: %v\n", k, v)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "  error: %s\n", e)
		}
	}
	return b.String()
}

// JSON renders the report as indented JSON.
func (r Report) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	return string(data), err
}

// Run executes every diagnostic phase and returns the combined report.
func Run() Report {
	return Report{Results: []Result{
		hostInfo(),
		usbInfo(),
		kernelDriverInfo(),
	}}
}

func hostInfo() Result {
	r := Result{Phase: "host_info", Timestamp: now(), Success: true, Data: map[string]interface{}{}}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		r.Data["cpu_percent"] = percents[0]
	} else if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("cpu percent: %v", err))
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		r.Data["mem_total"] = vm.Total
		r.Data["mem_available"] = vm.Available
		r.Data["mem_used_percent"] = vm.UsedPercent
	} else {
		r.Errors = append(r.Errors, fmt.Sprintf("virtual memory: %v", err))
	}

	if info, err := host.Info(); err == nil {
		r.Data["platform"] = info.Platform
		r.Data["kernel_version"] = info.KernelVersion
	} else {
		r.Errors = append(r.Errors, fmt.Sprintf("host info: %v", err))
	}

	if len(r.Errors) > 0 {
		r.Success = false
	}
	return r
}

// usbInfo shells out to lsusb looking for the shared Scarlett vendor ID
// (spec.md §6, registry.VendorID) among any of the registered product IDs.
func usbInfo() Result {
	r := Result{Phase: "usb_info", Timestamp: now(), Success: true, Data: map[string]interface{}{}}

	output, err := runCmd("lsusb")
	if err != nil {
		r.Success = false
		r.Errors = append(r.Errors, fmt.Sprintf("lsusb: %v", err))
		return r
	}
	r.Data["usb_devices"] = strings.Split(strings.TrimSpace(output), "\n")

	found := false
	for pid, model := range registry.ByProductID {
		needle := fmt.Sprintf("%04x:%04x", registry.VendorID, pid)
		if strings.Contains(strings.ToLower(output), needle) {
			found = true
			r.Data["matched_model"] = model.Name
			break
		}
	}
	r.Data["scarlett_found"] = found
	return r
}

// kernelDriverInfo checks lsmod for the in-kernel ALSA driver
// (snd_usb_audio), which can contend for the vendor control interface this
// engine needs exclusively (spec.md §4.3). It reports whether the module is
// loaded, not whether it is bound to this particular interface.
func kernelDriverInfo() Result {
	r := Result{Phase: "kernel_driver_info", Timestamp: now(), Success: true, Data: map[string]interface{}{}}

	output, err := runCmd("lsmod")
	if err != nil {
		r.Success = false
		r.Errors = append(r.Errors, fmt.Sprintf("lsmod: %v", err))
		return r
	}
	bound := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "snd_usb_audio") {
			bound = true
			break
		}
	}
	r.Data["snd_usb_audio_loaded"] = bound
	return r
}

func runCmd(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	return string(out), err
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
