package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Method names accepted by FakeBackend.On and reported in Call.Method.
const (
	MethodGetReceipt                 = "GetReceipt"
	MethodDetectTransactions         = "DetectTransactions"
	MethodGetBatchSession            = "GetBatchSession"
	MethodApprove                    = "Approve"
	MethodSkip                       = "Skip"
	MethodCompleteSession            = "CompleteSession"
	MethodCreateClarificationSession = "CreateClarificationSession"
	MethodGetClarificationSession    = "GetClarificationSession"
	MethodSendClarificationMessage   = "SendClarificationMessage"
	MethodListCategories             = "ListCategories"
	MethodListContacts               = "ListContacts"
	MethodListBankAccounts           = "ListBankAccounts"
)

// Call is one recorded backend invocation.
type Call struct {
	Edits            service.Edits
	Method           string
	ID               string
	Message          string
	TransactionIndex int
}

// Hook runs before a fake method does its work. A non-nil error is returned from the method
// instead. Hooks may block to hold an operation in flight.
type Hook func(ctx context.Context) error

// FakeBackend is an in-memory service.Backend that behaves like the extraction backend:
// approvals and skips update the stored batch session, and every call is recorded.
type FakeBackend struct {
	receipts       map[string]*model.Receipt
	sessions       map[string]*model.BatchSession
	clarifications map[string]*model.ClarificationSession
	turns          map[string][]*model.TurnResponse
	detections     map[string]*model.Detection
	hooks          map[string][]Hook
	categories     []model.Category
	contacts       []model.Contact
	bankAccounts   []model.BankAccount
	calls          []Call
	nextID         int
	mu             sync.Mutex
}

var _ service.Backend = (*FakeBackend)(nil)

// NewFakeBackend creates an empty fake.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		receipts:       make(map[string]*model.Receipt),
		sessions:       make(map[string]*model.BatchSession),
		clarifications: make(map[string]*model.ClarificationSession),
		turns:          make(map[string][]*model.TurnResponse),
		detections:     make(map[string]*model.Detection),
		hooks:          make(map[string][]Hook),
	}
}

// AddReceipt stores a receipt and registers its batch sessions.
func (f *FakeBackend) AddReceipt(r model.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[r.ID] = clone(&r)
	for i := range r.BatchSessions {
		f.sessions[r.BatchSessions[i].ID] = clone(&r.BatchSessions[i])
	}
}

// AddSession stores a batch session and attaches it to its receipt, if known.
func (f *FakeBackend) AddSession(s model.BatchSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = clone(&s)
	if r, ok := f.receipts[s.ReceiptID]; ok {
		r.BatchSessions = append(r.BatchSessions, *clone(&s))
	}
}

// Session returns a copy of the stored batch session.
func (f *FakeBackend) Session(id string) *model.BatchSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil
	}
	return clone(s)
}

// SetDetection stores the detection result for a receipt.
func (f *FakeBackend) SetDetection(receiptID string, d model.Detection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detections[receiptID] = &d
}

// AddClarification stores a clarification history.
func (f *FakeBackend) AddClarification(s model.ClarificationSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clarifications[s.ID] = clone(&s)
}

// QueueTurn queues the response for the next message sent to a clarification session.
func (f *FakeBackend) QueueTurn(sessionID string, resp model.TurnResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns[sessionID] = append(f.turns[sessionID], clone(&resp))
}

// SetReference stores the reference lists.
func (f *FakeBackend) SetReference(categories []model.Category, contacts []model.Contact, accounts []model.BankAccount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories = categories
	f.contacts = contacts
	f.bankAccounts = accounts
}

// On registers a hook for the next call of method. Hooks are consumed in order.
func (f *FakeBackend) On(method string, hook Hook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[method] = append(f.hooks[method], hook)
}

// FailNext makes the next call of method return err.
func (f *FakeBackend) FailNext(method string, err error) {
	f.On(method, func(context.Context) error { return err })
}

// Calls returns the recorded calls.
func (f *FakeBackend) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount counts recorded calls of method.
func (f *FakeBackend) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// enter records the call and runs the pending hook outside the lock.
func (f *FakeBackend) enter(ctx context.Context, call Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	var hook Hook
	if hooks := f.hooks[call.Method]; len(hooks) > 0 {
		hook = hooks[0]
		f.hooks[call.Method] = hooks[1:]
	}
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return common.Transport(err)
	}
	return nil
}

func (f *FakeBackend) GetReceipt(ctx context.Context, receiptID string) (*model.Receipt, error) {
	if err := f.enter(ctx, Call{Method: MethodGetReceipt, ID: receiptID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[receiptID]
	if !ok {
		return nil, notFound("receipt", receiptID)
	}
	out := clone(r)
	// Receipt reads reflect the latest stored session state.
	for i := range out.BatchSessions {
		if s, ok := f.sessions[out.BatchSessions[i].ID]; ok {
			out.BatchSessions[i] = *clone(s)
		}
	}
	return out, nil
}

func (f *FakeBackend) DetectTransactions(ctx context.Context, receiptID string) (*model.Detection, error) {
	if err := f.enter(ctx, Call{Method: MethodDetectTransactions, ID: receiptID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.detections[receiptID]
	if !ok {
		return &model.Detection{}, nil
	}
	return clone(d), nil
}

func (f *FakeBackend) GetBatchSession(ctx context.Context, batchSessionID string) (*model.BatchSession, error) {
	if err := f.enter(ctx, Call{Method: MethodGetBatchSession, ID: batchSessionID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[batchSessionID]
	if !ok {
		return nil, notFound("batch session", batchSessionID)
	}
	return clone(s), nil
}

func (f *FakeBackend) Approve(ctx context.Context, batchSessionID string, transactionIndex int, edits service.Edits) (service.ApproveResult, error) {
	call := Call{Method: MethodApprove, ID: batchSessionID, TransactionIndex: transactionIndex, Edits: edits}
	if err := f.enter(ctx, call); err != nil {
		return service.ApproveResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setStatus(batchSessionID, transactionIndex, model.ProcessingApproved); err != nil {
		return service.ApproveResult{}, err
	}
	f.nextID++
	return service.ApproveResult{TransactionID: fmt.Sprintf("txn-%d", f.nextID)}, nil
}

func (f *FakeBackend) Skip(ctx context.Context, batchSessionID string, transactionIndex int) error {
	if err := f.enter(ctx, Call{Method: MethodSkip, ID: batchSessionID, TransactionIndex: transactionIndex}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setStatus(batchSessionID, transactionIndex, model.ProcessingSkipped)
}

func (f *FakeBackend) CompleteSession(ctx context.Context, batchSessionID string) (*model.BatchSession, error) {
	if err := f.enter(ctx, Call{Method: MethodCompleteSession, ID: batchSessionID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[batchSessionID]
	if !ok {
		return nil, notFound("batch session", batchSessionID)
	}
	s.Status = model.SessionCompleted
	s.UpdatedAt = time.Now()
	return clone(s), nil
}

func (f *FakeBackend) CreateClarificationSession(ctx context.Context, batchSessionID string, transactionIndex int) (string, error) {
	call := Call{Method: MethodCreateClarificationSession, ID: batchSessionID, TransactionIndex: transactionIndex}
	if err := f.enter(ctx, call); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("cl-%d", f.nextID)
	f.clarifications[id] = &model.ClarificationSession{ID: id}
	if s, ok := f.sessions[batchSessionID]; ok {
		for i := range s.ExtractedData.Transactions {
			if s.ExtractedData.Transactions[i].TransactionIndex == transactionIndex {
				s.ExtractedData.Transactions[i].ClarificationSessionID = &id
			}
		}
	}
	return id, nil
}

func (f *FakeBackend) GetClarificationSession(ctx context.Context, sessionID string) (*model.ClarificationSession, error) {
	if err := f.enter(ctx, Call{Method: MethodGetClarificationSession, ID: sessionID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.clarifications[sessionID]
	if !ok {
		return nil, notFound("clarification session", sessionID)
	}
	return clone(s), nil
}

func (f *FakeBackend) SendClarificationMessage(ctx context.Context, sessionID, message string) (*model.TurnResponse, error) {
	if err := f.enter(ctx, Call{Method: MethodSendClarificationMessage, ID: sessionID, Message: message}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.clarifications[sessionID]
	if !ok {
		return nil, notFound("clarification session", sessionID)
	}
	s.ClarificationMessages = append(s.ClarificationMessages, model.StoredMessage{
		Role:        model.RoleUser,
		MessageText: message,
		CreatedAt:   time.Now(),
	})

	queue := f.turns[sessionID]
	if len(queue) == 0 {
		return &model.TurnResponse{}, nil
	}
	resp := queue[0]
	f.turns[sessionID] = queue[1:]
	return resp, nil
}

func (f *FakeBackend) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := f.enter(ctx, Call{Method: MethodListCategories}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Category(nil), f.categories...), nil
}

func (f *FakeBackend) ListContacts(ctx context.Context) ([]model.Contact, error) {
	if err := f.enter(ctx, Call{Method: MethodListContacts}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Contact(nil), f.contacts...), nil
}

func (f *FakeBackend) ListBankAccounts(ctx context.Context) ([]model.BankAccount, error) {
	if err := f.enter(ctx, Call{Method: MethodListBankAccounts}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.BankAccount(nil), f.bankAccounts...), nil
}

func (f *FakeBackend) setStatus(batchSessionID string, transactionIndex int, status model.ProcessingStatus) error {
	s, ok := f.sessions[batchSessionID]
	if !ok {
		return notFound("batch session", batchSessionID)
	}
	for i := range s.ExtractedData.Transactions {
		if s.ExtractedData.Transactions[i].TransactionIndex == transactionIndex {
			s.ExtractedData.Transactions[i].ProcessingStatus = status
			s.TotalProcessed++
			return nil
		}
	}
	return notFound("transaction", fmt.Sprint(transactionIndex))
}

func notFound(kind, id string) error {
	return &common.APIError{StatusCode: 404, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// clone deep-copies a value through JSON so the fake never shares memory with callers.
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: clone marshal: %v", err))
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("testutil: clone unmarshal: %v", err))
	}
	return &out
}
