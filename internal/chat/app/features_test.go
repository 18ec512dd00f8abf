package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"campus_chat_service/internal/chat/domain"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeGroupChatScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

type groupChatFeature struct {
	store   *memoryStore
	convUC  *ConversationUseCase
	msgUC   *MessageUseCase
	pub     *recordingPublisher
	group   *domain.Conversation
	lastErr error
}

func (f *groupChatFeature) reset() {
	f.store = newMemoryStore()
	f.convUC, f.msgUC, f.pub = newMemoryServices(f.store)
	f.group = nil
	f.lastErr = nil
}

func (f *groupChatFeature) identity(userID string) domain.Identity {
	role, ok := f.store.roles[userID]
	if !ok {
		role = domain.RoleStudent
	}
	return domain.Identity{UserID: userID, Role: role}
}

func (f *groupChatFeature) classHasStudents(classID, s1, s2 string) error {
	f.store.classes[classID] = []string{s1, s2}
	f.store.roles[s1] = domain.RoleStudent
	f.store.roles[s2] = domain.RoleStudent
	return nil
}

func (f *groupChatFeature) userHasRole(userID, role string) error {
	f.store.roles[userID] = domain.Role(role)
	return nil
}

func (f *groupChatFeature) createGroup(creator, classID, picks, name string) error {
	f.group, f.lastErr = f.convUC.CreateGroup(context.Background(), f.identity(creator), name,
		[]string{classID}, strings.Split(picks, ","))
	return nil
}

func (f *groupChatFeature) requireGroup() error {
	if f.lastErr != nil {
		return fmt.Errorf("create group failed: %w", f.lastErr)
	}
	if f.group == nil {
		return fmt.Errorf("no group created")
	}
	return nil
}

func (f *groupChatFeature) membersShouldBe(expected string) error {
	if err := f.requireGroup(); err != nil {
		return err
	}
	want := strings.Split(expected, ",")
	got := append([]string(nil), f.group.Participants...)
	sort.Strings(want)
	sort.Strings(got)
	if strings.Join(want, ",") != strings.Join(got, ",") {
		return fmt.Errorf("expected participants %v, got %v", want, got)
	}
	return nil
}

func (f *groupChatFeature) membersShouldNotContain(userID string) error {
	if err := f.requireGroup(); err != nil {
		return err
	}
	if f.group.HasParticipant(userID) {
		return fmt.Errorf("%s should not be a participant", userID)
	}
	return nil
}

func (f *groupChatFeature) groupAdminShouldBe(userID string) error {
	if err := f.requireGroup(); err != nil {
		return err
	}
	if f.group.GroupAdmin != userID {
		return fmt.Errorf("expected group admin %s, got %q", userID, f.group.GroupAdmin)
	}
	return nil
}

func (f *groupChatFeature) sendToGroup(sender, content string) error {
	if err := f.requireGroup(); err != nil {
		return err
	}
	_, err := f.msgUC.Send(context.Background(), f.identity(sender), SendInput{ConversationID: f.group.ID, Content: content})
	return err
}

func (f *groupChatFeature) shouldReceiveEvent(userID, event string) error {
	if n := f.pub.count(domain.EventType(event), domain.TargetUser, userID); n == 0 {
		return fmt.Errorf("%s did not receive %s", userID, event)
	}
	return nil
}

func (f *groupChatFeature) unreadShouldBe(userID string, expected int) error {
	conv, err := f.convUC.GetConversation(context.Background(), f.identity(userID), f.group.ID)
	if err != nil {
		return err
	}
	if got := conv.UnreadCounts.Of(userID); got != expected {
		return fmt.Errorf("expected unread of %s to be %d, got %d", userID, expected, got)
	}
	return nil
}

func (f *groupChatFeature) markRead(userID string) error {
	return f.convUC.MarkRead(context.Background(), f.identity(userID), f.group.ID)
}

func (f *groupChatFeature) shouldFailWith(kind string) error {
	if f.lastErr == nil {
		return fmt.Errorf("expected %s error, got none", kind)
	}
	if got := domain.KindOf(f.lastErr); string(got) != kind {
		return fmt.Errorf("expected %s error, got %s", kind, got)
	}
	return nil
}

// InitializeGroupChatScenario 註冊 Gherkin 與 Step Definition 的對應
func InitializeGroupChatScenario(sc *godog.ScenarioContext) {
	f := &groupChatFeature{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		f.reset()
		return ctx, nil
	})

	sc.Step(`^班級 "([^"]*)" 有學生 "([^"]*)" 與 "([^"]*)"$`, f.classHasStudents)
	sc.Step(`^使用者 "([^"]*)" 的角色是 "([^"]*)"$`, f.userHasRole)
	sc.Step(`^"([^"]*)" 以班級 "([^"]*)" 與個別挑選 "([^"]*)" 建立群組 "([^"]*)"$`, f.createGroup)
	sc.Step(`^群組成員應該是 "([^"]*)"$`, f.membersShouldBe)
	sc.Step(`^群組成員不應該包含 "([^"]*)"$`, f.membersShouldNotContain)
	sc.Step(`^群組管理者應該是 "([^"]*)"$`, f.groupAdminShouldBe)
	sc.Step(`^"([^"]*)" 在群組發送訊息 "([^"]*)"$`, f.sendToGroup)
	sc.Step(`^"([^"]*)" 應該收到 "([^"]*)" 事件$`, f.shouldReceiveEvent)
	sc.Step(`^"([^"]*)" 的未讀數應該是 (\d+)$`, f.unreadShouldBe)
	sc.Step(`^"([^"]*)" 將群組標示為已讀$`, f.markRead)
	sc.Step(`^應該得到 "([^"]*)" 錯誤$`, f.shouldFailWith)
}
