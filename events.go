package main

import (
	"log"
	"sync"

	"github.com/pterm/pterm"
)

// EventSink receives the notifications pipelines emit. Progress always
// returns to 0 when a pipeline run ends, whatever the outcome. LayerAdded
// fires only after the table or cache artifact is committed.
type EventSink interface {
	Progress(percent int)
	LayerAdded(name, schema string)
	LayersCleared()
}

// resetProgress is deferred by every long-running pipeline.
func resetProgress(sink EventSink) {
	sink.Progress(0)
}

type logSink struct{}

func (logSink) Progress(percent int) {
	if percent > 0 {
		log.Printf("  progress %d%%", percent)
	}
}

func (logSink) LayerAdded(name, schema string) {
	log.Printf("  layer added: %s.%s", schema, name)
}

func (logSink) LayersCleared() {
	log.Printf("  layers cleared")
}

// terminalSink renders progress as a pterm progress bar for CLI runs.
type terminalSink struct {
	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
}

func (s *terminalSink) Progress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if percent <= 0 {
		if s.bar != nil {
			s.bar.Stop()
			s.bar = nil
		}
		return
	}
	if percent > 100 {
		percent = 100
	}
	if s.bar == nil {
		bar, err := pterm.DefaultProgressbar.WithTotal(100).WithTitle("geoferry").Start()
		if err != nil {
			return
		}
		s.bar = bar
	}
	if d := percent - s.bar.Current; d > 0 {
		s.bar.Add(d)
	}
}

func (s *terminalSink) LayerAdded(name, schema string) {
	pterm.Success.Printfln("layer %s.%s ready", schema, name)
}

func (s *terminalSink) LayersCleared() {
	pterm.Info.Println("layers cleared")
}

type multiSink []EventSink

func (m multiSink) Progress(percent int) {
	for _, s := range m {
		s.Progress(percent)
	}
}

func (m multiSink) LayerAdded(name, schema string) {
	for _, s := range m {
		s.LayerAdded(name, schema)
	}
}

func (m multiSink) LayersCleared() {
	for _, s := range m {
		s.LayersCleared()
	}
}
