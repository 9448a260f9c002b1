package manager

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/engine/detector"
	"BehaviorSpectra/internal/metrics"
	"BehaviorSpectra/internal/model"
	"log"
	"sync"
	"time"
)

// Manager runs the event workers that feed the detector and flushes the anomalies they find to
// every writer.
type Manager struct {
	detector *detector.Detector
	writers  []*bufferedWriter

	// Worker pool for concurrent event processing
	eventChannel chan *model.Event
	numWorkers   int
	workerWg     sync.WaitGroup

	done      chan struct{}
	flusherWg sync.WaitGroup
	stopOnce  sync.Once
}

// bufferedWriter collects anomalies between two flushes of its writer.
type bufferedWriter struct {
	writer model.Writer

	mu      sync.Mutex
	pending []model.AnomalyRecord
}

func (b *bufferedWriter) add(records []model.AnomalyRecord) {
	b.mu.Lock()
	b.pending = append(b.pending, records...)
	b.mu.Unlock()
}

func (b *bufferedWriter) take() []model.AnomalyRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

// NewManager creates a new Manager around det. Anomalies are delivered to every writer.
func NewManager(cfg *config.Config, det *detector.Detector, writers []model.Writer) *Manager {
	buffered := make([]*bufferedWriter, len(writers))
	for i, w := range writers {
		buffered[i] = &bufferedWriter{writer: w}
	}
	numWorkers := cfg.Engine.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Manager{
		detector:     det,
		writers:      buffered,
		eventChannel: make(chan *model.Event, cfg.Engine.SizeOfEventChannel),
		numWorkers:   numWorkers,
		done:         make(chan struct{}),
	}
}

// Start begins the manager's event processing workers and one flusher per writer.
func (m *Manager) Start() {
	for _, w := range m.writers {
		m.flusherWg.Add(1)
		go m.runFlusher(w)
		log.Printf("Started flusher for a writer with interval %s.", w.writer.GetInterval())
	}

	m.workerWg.Add(m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		go m.worker()
	}
	log.Printf("Manager started with %d workers.", m.numWorkers)
}

// runFlusher periodically hands a writer the anomalies collected since its last flush.
func (m *Manager) runFlusher(w *bufferedWriter) {
	defer m.flusherWg.Done()
	interval := w.writer.GetInterval()
	if interval <= 0 {
		log.Printf("Invalid interval %s for writer, flusher will not run.", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.flush(w)
		case <-m.done:
			m.flush(w)
			return
		}
	}
}

func (m *Manager) flush(w *bufferedWriter) {
	records := w.take()
	if len(records) == 0 {
		return
	}
	if err := w.writer.Write(records); err != nil {
		log.Printf("Error writing %d anomalies: %v", len(records), err)
	}
}

// Submit queues evt for processing, blocking while the channel is full.
func (m *Manager) Submit(evt *model.Event) {
	m.eventChannel <- evt
}

// InputChannel exposes the event channel to ingestion layers.
func (m *Manager) InputChannel() chan<- *model.Event {
	return m.eventChannel
}

// Detector returns the detector the workers feed.
func (m *Manager) Detector() *detector.Detector {
	return m.detector
}

// Process runs evt through the detector synchronously and queues its anomalies for the writers.
func (m *Manager) Process(evt *model.Event) ([]model.AnomalyRecord, error) {
	anomalies, err := m.detector.Process(evt)
	if len(anomalies) > 0 {
		for _, w := range m.writers {
			w.add(anomalies)
		}
	}
	return anomalies, err
}

// Reload rebuilds the detector from cfg. On error the previous profiles stay in service.
func (m *Manager) Reload(cfg *config.Config) error {
	log.Println("Manager reloading count min sketch configuration...")
	if err := m.detector.Reload(cfg.CountMinSketch); err != nil {
		log.Printf("Reload rejected: %v", err)
		return err
	}
	log.Println("Manager reload complete.")
	return nil
}

// Stop gracefully shuts down the manager.
func (m *Manager) Stop() {
	m.stopOnce.Do(m.stop)
}

func (m *Manager) stop() {
	log.Println("Manager stopping...")
	// 1. Stop accepting new events.
	close(m.eventChannel)

	// 2. Wait for all workers to finish processing buffered events.
	log.Println("Waiting for workers to finish...")
	m.workerWg.Wait()

	// 3. Signal flushers to take a final flush and exit.
	close(m.done)
	log.Println("Waiting for flushers to finish...")
	m.flusherWg.Wait()

	// 4. Stop the sketch reset tasks and release the writers.
	m.detector.Close()
	for _, w := range m.writers {
		if err := w.writer.Close(); err != nil {
			log.Printf("Error closing writer: %v", err)
		}
	}

	log.Println("Manager stopped.")
}

func (m *Manager) worker() {
	defer m.workerWg.Done()
	for evt := range m.eventChannel {
		if _, err := m.Process(evt); err != nil {
			metrics.EventsDroppedTotal.WithLabelValues("error").Inc()
			log.Printf("Error processing %s event (tid %d): %v", evt.Type, evt.Tid, err)
		}
	}
}
