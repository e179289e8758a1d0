package telegram

import (
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	testChatID  = int64(-100500)
	testAdminID = int64(1)
)

// fakeAPI records every call. Errors queued in sendErrs and requestErrs are returned one per call.
type fakeAPI struct {
	mu          sync.Mutex
	nextID      int
	sent        []tgbotapi.Chattable
	requests    []tgbotapi.Chattable
	albums      []tgbotapi.MediaGroupConfig
	sendErrs    []error
	requestErrs []error

	admins  []tgbotapi.ChatMember
	members map[int64]tgbotapi.ChatMember

	updates chan tgbotapi.Update
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		members: make(map[int64]tgbotapi.ChatMember),
		updates: make(chan tgbotapi.Update, 10),
	}
}

func newTestBot(api *fakeAPI) *Bot {
	b := NewBot(api, testChatID, testAdminID)
	b.backoff = time.Millisecond
	return b
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, c)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.nextID++
	msg := tgbotapi.Message{MessageID: f.nextID}
	if _, ok := c.(tgbotapi.PhotoConfig); ok {
		msg.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "uploaded"}}
	}
	return msg, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, c)
	if len(f.requestErrs) > 0 {
		err := f.requestErrs[0]
		f.requestErrs = f.requestErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.albums = append(f.albums, config)
	out := make([]tgbotapi.Message, len(config.Media))
	for i := range out {
		f.nextID++
		out[i] = tgbotapi.Message{MessageID: f.nextID}
	}
	return out, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error) {
	return f.admins, nil
}

func (f *fakeAPI) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[config.UserID], nil
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeAPI) requestLog() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.requests...)
}

func user(id int64, first, username string) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: first, UserName: username}
}

// commandMessage builds a quiz chat message whose text starts with a bot command.
func commandMessage(from *tgbotapi.User, text string, extra ...tgbotapi.MessageEntity) *tgbotapi.Message {
	cmdLen := strings.IndexByte(text, ' ')
	if cmdLen < 0 {
		cmdLen = len(text)
	}
	entities := append([]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}, extra...)
	return &tgbotapi.Message{
		MessageID: 77,
		From:      from,
		Chat:      &tgbotapi.Chat{ID: testChatID, Type: "supergroup"},
		Text:      text,
		Entities:  entities,
	}
}
