package tool

import (
	"sync"
)

// DiscoveryObservation captures one registry rebuild.
type DiscoveryObservation struct {
	Candidates int
	Registered int
	Excluded   int
	DurationMS int64
}

// DispatchObservation captures one dispatch outcome.
type DispatchObservation struct {
	ToolID     string
	DurationMS int64
	Success    bool
	Status     string
	ErrorCode  string
}

// AttemptObservation captures one Ralph Loop attempt.
type AttemptObservation struct {
	Loop    string
	Attempt int
	Passed  bool
	Reason  string
}

// Observer receives tool-level observability events.
type Observer interface {
	ObserveDiscovery(observation DiscoveryObservation)
	ObserveDispatch(observation DispatchObservation)
	ObserveAttempt(observation AttemptObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveDiscovery(DiscoveryObservation) {}
func (noopObserver) ObserveDispatch(DispatchObservation)   {}
func (noopObserver) ObserveAttempt(AttemptObservation)     {}

// MultiObserver fans each event out to every non-nil observer.
type MultiObserver []Observer

func (m MultiObserver) ObserveDiscovery(observation DiscoveryObservation) {
	for _, o := range m {
		if o != nil {
			o.ObserveDiscovery(observation)
		}
	}
}

func (m MultiObserver) ObserveDispatch(observation DispatchObservation) {
	for _, o := range m {
		if o != nil {
			o.ObserveDispatch(observation)
		}
	}
}

func (m MultiObserver) ObserveAttempt(observation AttemptObservation) {
	for _, o := range m {
		if o != nil {
			o.ObserveAttempt(observation)
		}
	}
}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide tool observability observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func currentObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return activeObserver
}

func emitDiscoveryObservation(observation DiscoveryObservation) {
	currentObserver().ObserveDiscovery(observation)
}

func emitDispatchObservation(observation DispatchObservation) {
	currentObserver().ObserveDispatch(observation)
}

func emitAttemptObservation(observation AttemptObservation) {
	currentObserver().ObserveAttempt(observation)
}
