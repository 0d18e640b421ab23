package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/iamvkosarev/telegram-ai-relay/config"
	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
	in_memory "github.com/iamvkosarev/telegram-ai-relay/internal/storage/in-memory"
	"github.com/iamvkosarev/telegram-ai-relay/internal/telegram"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
)

type fakeCompleter struct {
	mu         sync.Mutex
	requests   []CompletionRequest
	prompts    []string
	completion Completion
	imageURL   string
	imageErr   error
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) Completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.completion
}

func (f *fakeCompleter) GenerateImage(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.imageURL, f.imageErr
}

func (f *fakeCompleter) calls() ([]CompletionRequest, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompletionRequest(nil), f.requests...), append([]string(nil), f.prompts...)
}

type edit struct {
	inlineMessageID string
	text            string
}

type fakeMessenger struct {
	mu    sync.Mutex
	edits []edit
	err   error
}

func (f *fakeMessenger) EditInlineMessageText(inlineMessageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit{inlineMessageID: inlineMessageID, text: text})
	return f.err
}

func (f *fakeMessenger) recorded() []edit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]edit(nil), f.edits...)
}

type brokenStorage struct{}

func (brokenStorage) GetConversation(context.Context, string) (model.Conversation, error) {
	return nil, errors.New("store is down")
}

func (brokenStorage) SetConversation(context.Context, string, model.Conversation) error {
	return errors.New("store is down")
}

type dispatchFixture struct {
	dispatch  *DispatchUsecase
	completer *fakeCompleter
	messenger *fakeMessenger
	store     *in_memory.AIChatStorage
}

func newDispatchFixture(t *testing.T, window int) *dispatchFixture {
	t.Helper()
	store := in_memory.NewAIChatStorage()
	f := newDispatchFixtureWithStorage(t, window, store)
	f.store = store
	return f
}

func newDispatchFixtureWithStorage(t *testing.T, window int, storage ConversationStorage) *dispatchFixture {
	t.Helper()
	completer := &fakeCompleter{
		completion: Completion{Text: "hi there", Outcome: OutcomeOK},
		imageURL:   "https://img.example/1.png",
	}
	messenger := &fakeMessenger{}
	conversation := NewConversationUsecase(
		ConversationUsecaseDeps{Storage: storage},
		config.Conversation{Window: window},
	)
	dispatch := NewDispatchUsecase(
		DispatchUsecaseDeps{
			Conversation: conversation,
			Completer:    completer,
			Messenger:    messenger,
		}, sl.Discard(),
	)
	t.Cleanup(dispatch.Wait)
	return &dispatchFixture{dispatch: dispatch, completer: completer, messenger: messenger}
}

func (f *dispatchFixture) seed(t *testing.T, key string, conv model.Conversation) {
	t.Helper()
	if err := f.store.SetConversation(context.Background(), key, conv); err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}
}

func (f *dispatchFixture) stored(t *testing.T, key string) model.Conversation {
	t.Helper()
	conv, err := f.store.GetConversation(context.Background(), key)
	if err != nil {
		t.Fatalf("failed to read conversation: %v", err)
	}
	return conv
}

func privateMessage(text string) model.TextMessage {
	return model.TextMessage{
		ChatID:    42,
		ChatType:  model.ChatTypePrivate,
		MessageID: 5,
		From:      model.Sender{Username: "alice"},
		Text:      text,
	}
}

func groupMessage(text string) model.TextMessage {
	msg := privateMessage(text)
	msg.ChatType = model.ChatTypeSupergroup
	return msg
}

func callback(data string) model.CallbackQuery {
	return model.CallbackQuery{
		QueryID:         "cb1",
		InlineMessageID: "im1",
		ChatInstance:    "ci1",
		From:            model.Sender{Username: "alice"},
		Data:            data,
	}
}

func sendMessage(t *testing.T, reply telegram.Reply) telegram.SendMessage {
	t.Helper()
	msg, ok := reply.(telegram.SendMessage)
	if !ok {
		t.Fatalf("expected SendMessage, got %T", reply)
	}
	return msg
}

func TestDispatch_PrivateChatCompletes(t *testing.T) {
	f := newDispatchFixture(t, 2)

	reply, err := f.dispatch.Handle(context.Background(), privateMessage("hello"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	msg := sendMessage(t, reply)
	if msg.ChatID != 42 || msg.Text != "hi there" || msg.ReplyParameters == nil || msg.ReplyParameters.MessageID != 5 {
		t.Fatalf("unexpected reply: %+v", msg)
	}

	requests, _ := f.completer.calls()
	if len(requests) != 1 {
		t.Fatalf("expected one completion, got %d", len(requests))
	}
	wantRequest := model.Conversation{{Role: model.RoleUser, Content: "hello"}}
	if !reflect.DeepEqual(requests[0].Conversation, wantRequest) {
		t.Fatalf("unexpected conversation sent: %v", requests[0].Conversation)
	}
	if requests[0].UserID != "tg_alice" {
		t.Fatalf("unexpected user id %q", requests[0].UserID)
	}

	want := model.Conversation{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "hi there"},
	}
	if got := f.stored(t, "42"); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected stored conversation: %v", got)
	}
}

func TestDispatch_PrivateChatBoundsContext(t *testing.T) {
	f := newDispatchFixture(t, 1)
	f.seed(
		t, "42", model.Conversation{
			{Role: model.RoleUser, Content: "q1"},
			{Role: model.RoleAssistant, Content: "a1"},
		},
	)

	if _, err := f.dispatch.Handle(context.Background(), privateMessage("q2")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	requests, _ := f.completer.calls()
	want := model.Conversation{
		{Role: model.RoleAssistant, Content: "a1"},
		{Role: model.RoleUser, Content: "q2"},
	}
	if !reflect.DeepEqual(requests[0].Conversation, want) {
		t.Fatalf("unexpected conversation sent: %v", requests[0].Conversation)
	}
	if got := f.stored(t, "42"); len(got) != 3 {
		t.Fatalf("expected the answer appended without re-truncation, got %v", got)
	}
}

func TestDispatch_DegradedCompletionIsNotStored(t *testing.T) {
	f := newDispatchFixture(t, 2)
	f.completer.completion = Completion{Text: FallbackCompletionText, Outcome: OutcomeDegraded}

	reply, err := f.dispatch.Handle(context.Background(), privateMessage("hello"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if msg := sendMessage(t, reply); msg.Text != FallbackCompletionText {
		t.Fatalf("unexpected reply text %q", msg.Text)
	}
	if f.store.Len() != 0 {
		t.Fatal("degraded completion must not be stored")
	}
}

func TestDispatch_PersistenceDisabled(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.seed(t, "42", model.Conversation{{Role: model.RoleUser, Content: "old"}})

	if _, err := f.dispatch.Handle(context.Background(), privateMessage("hello")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	requests, _ := f.completer.calls()
	if !reflect.DeepEqual(requests[0].Conversation, model.Conversation{{Role: model.RoleUser, Content: "hello"}}) {
		t.Fatalf("stored context must not be read: %v", requests[0].Conversation)
	}
	if got := f.stored(t, "42"); len(got) != 1 || got[0].Content != "old" {
		t.Fatalf("stored context must not be written: %v", got)
	}
}

func TestDispatch_ReplyToMessage(t *testing.T) {
	cases := []struct {
		name    string
		replyTo *model.RepliedMessage
		want    model.Conversation
	}{
		{
			name:    "bot answer",
			replyTo: &model.RepliedMessage{Text: "earlier answer", FromBot: true},
			want: model.Conversation{
				{Role: model.RoleAssistant, Content: "earlier answer"},
				{Role: model.RoleUser, Content: "hello"},
			},
		},
		{
			name:    "user message",
			replyTo: &model.RepliedMessage{Text: "my question"},
			want: model.Conversation{
				{Role: model.RoleUser, Content: "my question"},
				{Role: model.RoleUser, Content: "hello"},
			},
		},
		{
			name:    "command output",
			replyTo: &model.RepliedMessage{Text: MessageContextCleared, FromBot: true},
			want:    model.Conversation{{Role: model.RoleUser, Content: "hello"}},
		},
	}
	for _, tc := range cases {
		t.Run(
			tc.name, func(t *testing.T) {
				f := newDispatchFixture(t, 3)
				msg := privateMessage("hello")
				msg.ReplyTo = tc.replyTo
				if _, err := f.dispatch.Handle(context.Background(), msg); err != nil {
					t.Fatalf("unexpected err: %v", err)
				}
				requests, _ := f.completer.calls()
				if !reflect.DeepEqual(requests[0].Conversation, tc.want) {
					t.Fatalf("unexpected conversation sent: %v", requests[0].Conversation)
				}
			},
		)
	}
}

func TestDispatch_GroupBareChatShowsHint(t *testing.T) {
	f := newDispatchFixture(t, 2)

	reply, err := f.dispatch.Handle(context.Background(), groupMessage("/chat@groknear_bot"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	msg := sendMessage(t, reply)
	if msg.Text != MessageChatHint.Default {
		t.Fatalf("unexpected reply text %q", msg.Text)
	}
	if requests, _ := f.completer.calls(); len(requests) != 0 {
		t.Fatal("hint must not call the model")
	}
	if f.store.Len() != 0 {
		t.Fatal("hint must not write the store")
	}
}

func TestDispatch_GroupChatCommand(t *testing.T) {
	f := newDispatchFixture(t, 1)
	f.seed(
		t, "42", model.Conversation{
			{Role: model.RoleUser, Content: "q1"},
			{Role: model.RoleAssistant, Content: "a1"},
			{Role: model.RoleUser, Content: "q2"},
			{Role: model.RoleAssistant, Content: "a2"},
		},
	)

	reply, err := f.dispatch.Handle(context.Background(), groupMessage("/chat@groknear_bot why?"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if msg := sendMessage(t, reply); msg.Text != "hi there" || msg.ReplyParameters == nil {
		t.Fatalf("unexpected reply: %+v", msg)
	}
	requests, _ := f.completer.calls()
	want := model.Conversation{
		{Role: model.RoleAssistant, Content: "a2"},
		{Role: model.RoleUser, Content: "why?"},
	}
	if !reflect.DeepEqual(requests[0].Conversation, want) {
		t.Fatalf("unexpected conversation sent: %v", requests[0].Conversation)
	}
}

func TestDispatch_GroupOtherTextIsIgnored(t *testing.T) {
	f := newDispatchFixture(t, 2)
	reply, err := f.dispatch.Handle(context.Background(), groupMessage("just chatting"))
	if err != nil || reply != nil {
		t.Fatalf("expected no action, got %v, %v", reply, err)
	}
	if requests, _ := f.completer.calls(); len(requests) != 0 {
		t.Fatal("unexpected completion")
	}
}

func TestDispatch_ClearTakesPrecedenceInGroups(t *testing.T) {
	f := newDispatchFixture(t, 2)
	f.seed(t, "42", model.Conversation{{Role: model.RoleUser, Content: "q1"}})

	reply, err := f.dispatch.Handle(context.Background(), groupMessage("/clear"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if msg := sendMessage(t, reply); msg.Text != MessageContextCleared || msg.ReplyMarkup == nil {
		t.Fatalf("unexpected reply: %+v", msg)
	}
	if got := f.stored(t, "42"); len(got) != 0 {
		t.Fatalf("expected cleared context, got %v", got)
	}
	if requests, _ := f.completer.calls(); len(requests) != 0 {
		t.Fatal("unexpected completion")
	}
}

func TestDispatch_ContextCommand(t *testing.T) {
	f := newDispatchFixture(t, 2)

	reply, err := f.dispatch.Handle(context.Background(), groupMessage("/context"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if msg := sendMessage(t, reply); msg.Text != MessageContextEmpty {
		t.Fatalf("unexpected reply text %q", msg.Text)
	}

	f.seed(t, "42", model.Conversation{{Role: model.RoleUser, Content: "q1"}})
	reply, err = f.dispatch.Handle(context.Background(), groupMessage("/context"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := `COMMAND: [{"role":"user","content":"q1"}]`
	if msg := sendMessage(t, reply); msg.Text != want {
		t.Fatalf("unexpected reply text %q", msg.Text)
	}
}

func TestDispatch_Image(t *testing.T) {
	f := newDispatchFixture(t, 2)

	reply, err := f.dispatch.Handle(context.Background(), privateMessage("/image a red bicycle"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	photo, ok := reply.(telegram.SendPhoto)
	if !ok {
		t.Fatalf("expected SendPhoto, got %T", reply)
	}
	if photo.Photo != "https://img.example/1.png" || photo.ReplyParameters == nil || photo.ReplyParameters.MessageID != 5 {
		t.Fatalf("unexpected photo: %+v", photo)
	}
	if _, prompts := f.completer.calls(); !reflect.DeepEqual(prompts, []string{"a red bicycle"}) {
		t.Fatalf("unexpected prompts: %v", prompts)
	}
}

func TestDispatch_ImageFailure(t *testing.T) {
	f := newDispatchFixture(t, 2)
	f.completer.imageErr = errors.New("rate limited")

	_, err := f.dispatch.Handle(context.Background(), privateMessage("/image a red bicycle"))
	if !errors.Is(err, ErrImageGeneration) {
		t.Fatalf("expected ErrImageGeneration, got %v", err)
	}
}

func TestDispatch_GroupImage(t *testing.T) {
	f := newDispatchFixture(t, 2)

	reply, err := f.dispatch.Handle(context.Background(), groupMessage("/image@groknear_bot"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if msg := sendMessage(t, reply); msg.Text != MessageImageHint.Default {
		t.Fatalf("unexpected reply text %q", msg.Text)
	}

	reply, err = f.dispatch.Handle(context.Background(), groupMessage("/image@groknear_bot a cat"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok := reply.(telegram.SendPhoto); !ok {
		t.Fatalf("expected SendPhoto, got %T", reply)
	}
	if _, prompts := f.completer.calls(); !reflect.DeepEqual(prompts, []string{"a cat"}) {
		t.Fatalf("unexpected prompts: %v", prompts)
	}
}

func TestDispatch_StaticCommands(t *testing.T) {
	f := newDispatchFixtureWithStorage(t, 2, brokenStorage{})

	msg := privateMessage("/start")
	msg.From.LanguageCode = "en"
	reply, err := f.dispatch.Handle(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	greeting := sendMessage(t, reply)
	if !strings.HasPrefix(greeting.Text, "Hi alice!") || greeting.ReplyMarkup == nil {
		t.Fatalf("unexpected greeting: %+v", greeting)
	}

	msg = groupMessage("/help")
	msg.From = model.Sender{LanguageCode: "ru"}
	reply, err = f.dispatch.Handle(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if text := sendMessage(t, reply).Text; !strings.HasPrefix(text, "Привет, user!") {
		t.Fatalf("unexpected greeting: %q", text)
	}

	reply, err = f.dispatch.Handle(context.Background(), groupMessage("/buy"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if text := sendMessage(t, reply).Text; text != MessageBuy.Default {
		t.Fatalf("unexpected buy text: %q", text)
	}
	if requests, _ := f.completer.calls(); len(requests) != 0 {
		t.Fatal("static commands must not call the model")
	}
}

func TestDispatch_StoreFailure(t *testing.T) {
	f := newDispatchFixtureWithStorage(t, 2, brokenStorage{})
	if _, err := f.dispatch.Handle(context.Background(), privateMessage("hello")); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := f.dispatch.Handle(context.Background(), callback("/clear")); err == nil {
		t.Fatal("expected store error")
	}
}

func TestDispatch_InlineQuery(t *testing.T) {
	f := newDispatchFixture(t, 2)

	for _, query := range []string{"", "   ", "\t\n"} {
		reply, err := f.dispatch.Handle(context.Background(), model.InlineQuery{QueryID: "iq", Query: query})
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		answer, ok := reply.(telegram.AnswerInlineQuery)
		if !ok || len(answer.Results) != 0 {
			t.Fatalf("expected empty answer for %q, got %#v", query, reply)
		}
	}

	reply, err := f.dispatch.Handle(context.Background(), model.InlineQuery{QueryID: "iq", Query: "why?"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if answer := reply.(telegram.AnswerInlineQuery); len(answer.Results) != 1 || answer.InlineQueryID != "iq" {
		t.Fatalf("unexpected answer: %#v", answer)
	}
}

func TestDispatch_CallbackClear(t *testing.T) {
	f := newDispatchFixture(t, 2)
	f.seed(t, "ci1", model.Conversation{{Role: model.RoleUser, Content: "q1"}})

	reply, err := f.dispatch.Handle(context.Background(), callback("/clear"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	answer, ok := reply.(telegram.AnswerCallbackQuery)
	if !ok || answer.CallbackQueryID != "cb1" || answer.Text != MessageContextCleared {
		t.Fatalf("unexpected answer: %#v", reply)
	}
	f.dispatch.Wait()

	edits := f.messenger.recorded()
	want := []edit{
		{inlineMessageID: "im1", text: "Query: /clear\n\n(Processing...)"},
		{inlineMessageID: "im1", text: MessageContextCleared},
	}
	if !reflect.DeepEqual(edits, want) {
		t.Fatalf("unexpected edits: %v", edits)
	}
	if requests, _ := f.completer.calls(); len(requests) != 0 {
		t.Fatal("no completion must be scheduled for /clear")
	}
	if got := f.stored(t, "ci1"); len(got) != 0 {
		t.Fatalf("expected cleared context, got %v", got)
	}
}

func TestDispatch_CallbackCompletesInBackground(t *testing.T) {
	f := newDispatchFixture(t, 2)
	seeded := model.Conversation{
		{Role: model.RoleUser, Content: "q1"},
		{Role: model.RoleAssistant, Content: "a1"},
	}
	f.seed(t, "ci1", seeded)
	f.completer.completion = Completion{Text: "  the answer \n", Outcome: OutcomeOK}

	reply, err := f.dispatch.Handle(context.Background(), callback("why?"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if answer := reply.(telegram.AnswerCallbackQuery); answer.Text != MessageProcessing {
		t.Fatalf("unexpected answer: %#v", answer)
	}
	f.dispatch.Wait()

	requests, _ := f.completer.calls()
	if len(requests) != 1 || !reflect.DeepEqual(requests[0].Conversation, seeded) {
		t.Fatalf("callback data must not be appended before completion: %v", requests)
	}
	edits := f.messenger.recorded()
	if len(edits) != 2 || edits[1].text != "Query: why?\n\nAnswer:\nthe answer" {
		t.Fatalf("unexpected edits: %v", edits)
	}
	if got := f.stored(t, "ci1"); len(got) != 3 || got[2].Role != model.RoleAssistant {
		t.Fatalf("expected the answer stored, got %v", got)
	}
}

func TestDispatch_CallbackEditFailureIsLogged(t *testing.T) {
	f := newDispatchFixture(t, 2)
	f.messenger.err = errors.New("message is not modified")

	reply, err := f.dispatch.Handle(context.Background(), callback("/context"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if answer := reply.(telegram.AnswerCallbackQuery); answer.Text != MessageContextEmpty {
		t.Fatalf("unexpected answer: %#v", answer)
	}
}

func TestCommandArgument(t *testing.T) {
	cases := []struct {
		text    string
		command string
		want    string
	}{
		{"/image a red bicycle", CommandImage, "a red bicycle"},
		{"/image", CommandImage, ""},
		{"/image   ", CommandImage, ""},
		{"/image@groknear_bot", CommandImage, ""},
		{"/image@groknear_bot a cat", CommandImage, "a cat"},
		{"/chat@groknear_bot\nwhy?", CommandChat, "why?"},
	}
	for _, tc := range cases {
		if got := commandArgument(tc.text, tc.command); got != tc.want {
			t.Errorf("commandArgument(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
