package work

import "sync"

// Outcome is the single value a ChanRequester produces
type Outcome struct {
	Result Result
	Err    error
}

// ChanRequester delivers the first outcome on a buffered channel and drops
// anything after it, so the broker never blocks on a slow reader.
type ChanRequester struct {
	ch   chan Outcome
	once sync.Once
}

// NewChanRequester creates a single-shot channel requester
func NewChanRequester() *ChanRequester {
	return &ChanRequester{ch: make(chan Outcome, 1)}
}

// Deliver implements Requester
func (c *ChanRequester) Deliver(result Result) {
	c.once.Do(func() {
		c.ch <- Outcome{Result: result}
	})
}

// Fail implements Requester
func (c *ChanRequester) Fail(err error) {
	c.once.Do(func() {
		c.ch <- Outcome{Err: err}
	})
}

// Done returns the channel the outcome arrives on
func (c *ChanRequester) Done() <-chan Outcome {
	return c.ch
}

// RequesterFuncs adapts a pair of functions to Requester. Nil funcs are skipped.
type RequesterFuncs struct {
	OnDeliver func(Result)
	OnFail    func(error)
}

// Deliver implements Requester
func (f RequesterFuncs) Deliver(result Result) {
	if f.OnDeliver != nil {
		f.OnDeliver(result)
	}
}

// Fail implements Requester
func (f RequesterFuncs) Fail(err error) {
	if f.OnFail != nil {
		f.OnFail(err)
	}
}
