/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: worker.go
Description: Worker pool for parsing many documents against one shared grammar store.
Each document starts from the latest grammar version at the time a worker picks it up,
so repairs made for one document benefit the ones parsed after it.
*/

package core

import (
	"context"
	"runtime"
	"sync"

	"github.com/kleascm/akaylee-parser/pkg/parser"
	"github.com/sirupsen/logrus"
)

// Input is one document of a batch
type Input struct {
	Name string
	Data []byte
}

// BatchResult is the outcome for one Input, at the same index
type BatchResult struct {
	Name   string
	Root   *parser.Node
	Report *Report
	Err    error
}

// ParseAll parses inputs with up to workers concurrent parses.
// workers <= 0 uses the number of CPUs.
func (e *Engine) ParseAll(ctx context.Context, inputs []Input, workers int) []BatchResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}
	results := make([]BatchResult, len(inputs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.runWorker(ctx, id, inputs, jobs, results)
		}(w)
	}

	e.logger.WithFields(logrus.Fields{
		"documents": len(inputs),
		"workers":   workers,
	}).Info("Batch parse started")

feed:
	for i := range inputs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	// documents never handed to a worker
	for i := range results {
		if results[i].Report == nil && results[i].Err == nil {
			results[i] = BatchResult{Name: inputs[i].Name, Err: ctx.Err()}
		}
	}
	return results
}

// runWorker processes jobs until the channel is closed
func (e *Engine) runWorker(ctx context.Context, id int, inputs []Input, jobs <-chan int, results []BatchResult) {
	log := e.logger.WithField("worker", id)
	for i := range jobs {
		in := inputs[i]
		root, rep, err := e.Parse(ctx, in.Data, e.store.Latest().Version())
		results[i] = BatchResult{Name: in.Name, Root: root, Report: rep, Err: err}
		log.WithFields(logrus.Fields{
			"document": in.Name,
			"outcome":  rep.Outcome,
		}).Debug("Document parsed")
	}
}
