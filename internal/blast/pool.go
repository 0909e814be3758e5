package blast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/pkg/queue"
)

// Pool pulls blast jobs off the queue and fans them out to workers. Each
// worker runs one blast at a time; blasts for different outlets proceed in
// parallel.
type Pool struct {
	queue    queue.Queue
	pipeline *Pipeline
	log      *zap.Logger

	numWorkers int
	taskChan   chan *queue.Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewPool(q queue.Queue, pipeline *Pipeline, log *zap.Logger, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Pool{
		queue:      q,
		pipeline:   pipeline,
		log:        log,
		numWorkers: numWorkers,
		taskChan:   make(chan *queue.Job, numWorkers*2),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.log.Info("blast pool starting", zap.Int("workers", p.numWorkers))

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.wg.Add(1)
	go p.runDispatcher()
}

func (p *Pool) Stop() {
	p.log.Info("blast pool stopping")
	p.cancel()
	p.wg.Wait()
	close(p.taskChan)
}

func (p *Pool) runDispatcher() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			job, err := p.queue.Dequeue(p.ctx, time.Second)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.log.Error("blast pool dequeue failed", zap.Error(err))
				continue
			}
			if job == nil {
				continue
			}

			select {
			case p.taskChan <- job:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.taskChan:
			if job == nil {
				return
			}
			if err := p.pipeline.Run(p.ctx, job.OutletID, job.BlastID); err != nil {
				p.log.Error("blast job failed",
					zap.Int("worker_id", id),
					zap.String("blast_id", job.BlastID),
					zap.Error(err))
			}
		}
	}
}
