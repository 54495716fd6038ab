// Package gobroker pairs generation requests with remote GPU workers.
//
// Requesters submit prompts over HTTP. The broker queues them in arrival
// order and hands each one to the worker that has been idle the longest.
// Workers announce themselves with READY, answer a dispatch with OUTPUT and
// leave with GOODBYE. The result travels back to the requester that asked
// for it, tagged with the worker's hostname.
//
// Workers reach the broker over one of several transports:
//   - websocket (default)
//   - NATS
//   - RabbitMQ
//   - memory, for tests and single-process deployments
//
// Statistics go to Prometheus, Redis, both or nowhere.
//
// # Example
//
//	package main
//
//	import (
//		"context"
//		"log/slog"
//		"os"
//
//		"github.com/BranchIntl/gobroker"
//		"github.com/BranchIntl/gobroker/config"
//	)
//
//	func main() {
//		cfg, err := config.Load("gobroker.yaml")
//		if err != nil {
//			panic(err)
//		}
//		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//
//		service, err := gobroker.New(cfg, logger)
//		if err != nil {
//			panic(err)
//		}
//
//		// Serve until SIGINT, SIGTERM or SIGQUIT
//		if err := service.Run(context.Background()); err != nil {
//			panic(err)
//		}
//	}
//
// # Embedding the broker
//
// The core package can be used without the HTTP front-end. Anything that
// implements work.Requester can receive results.
//
//	transport := memory.NewTransport(memory.DefaultOptions())
//	broker := core.NewBroker(transport, noop.NewStatistics(),
//		core.WithQueueCapacity(100),
//		core.WithShutdownTimeout(5*time.Second),
//	)
//	if err := broker.Start(ctx); err != nil {
//		return err
//	}
//	defer broker.Stop()
//
//	requester := work.NewChanRequester()
//	req, _ := work.NewRequest(work.Payload{{Name: "prompt", Value: "a fox"}}, requester)
//	if err := broker.Enqueue(ctx, req); err != nil {
//		return err
//	}
//	outcome := <-requester.Done()
//
// # Writing a worker
//
// The worker package speaks the protocol for you. A Processor turns the
// dispatched parameters into image bytes.
//
//	conn, err := transports.Dial(ctx, cfg.Transport, "")
//	if err != nil {
//		return err
//	}
//	w := worker.New(conn, worker.ProcessorFunc(render), worker.WithHostname("gpu-01"))
//	return w.Run(ctx)
package gobroker
