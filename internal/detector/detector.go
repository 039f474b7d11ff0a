// Package detector flags messages that should trigger automatic escalation
// based on keyword matching.
package detector

import (
	"fmt"
	"strings"
	"sync"
)

// defaultKeywords trigger auto-escalation for any tenant.
var defaultKeywords = []string{
	// Urgency indicators
	"urgent", "emergency", "asap", "immediately", "critical",
	// Frustration indicators
	"angry", "frustrated", "upset", "annoyed",
	"unacceptable", "ridiculous", "terrible", "awful",
	// Issue severity
	"broken", "crash", "not working", "fail",
	"down", "offline",
	// Escalation requests
	"manager", "supervisor", "escalate", "escalation",
	"speak to", "talk to", "human", "real person",
}

// Detection is the outcome of scanning one message.
type Detection struct {
	ShouldEscalate bool     `json:"should_escalate"`
	Keywords       []string `json:"keywords,omitempty"`
	Confidence     float64  `json:"confidence"`
	Reason         string   `json:"reason,omitempty"`
}

// Detector scans messages for escalation keywords. Tenant keyword sets may
// be replaced while requests are in flight, so access is guarded.
type Detector struct {
	mu             sync.RWMutex
	keywords       []string
	tenantKeywords map[string][]string
}

// New creates a Detector with the default keyword set.
func New() *Detector {
	return &Detector{
		keywords:       defaultKeywords,
		tenantKeywords: make(map[string][]string),
	}
}

// SetTenantKeywords replaces the additional keywords for one tenant.
func (d *Detector) SetTenantKeywords(tenantID string, keywords []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenantKeywords[tenantID] = keywords
}

// Detect scans a message. Any keyword hit suggests escalation; confidence
// saturates at three distinct hits.
func (d *Detector) Detect(tenantID, message string) Detection {
	lower := strings.ToLower(message)

	d.mu.RLock()
	var detected []string
	for _, kw := range d.keywords {
		if strings.Contains(lower, kw) {
			detected = append(detected, kw)
		}
	}
	for _, kw := range d.tenantKeywords[tenantID] {
		if strings.Contains(lower, strings.ToLower(kw)) {
			detected = append(detected, kw)
		}
	}
	d.mu.RUnlock()

	confidence := float64(len(detected)) / 3.0
	if confidence > 1.0 {
		confidence = 1.0
	}

	det := Detection{
		ShouldEscalate: len(detected) > 0,
		Keywords:       detected,
		Confidence:     confidence,
	}
	if det.ShouldEscalate {
		shown := detected
		if len(shown) > 3 {
			shown = shown[:3]
		}
		det.Reason = fmt.Sprintf("detected %d escalation keyword(s): %s", len(detected), strings.Join(shown, ", "))
	}
	return det
}
