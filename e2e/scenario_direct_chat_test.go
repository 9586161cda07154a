package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"estate-chat/domain"
	"estate-chat/services"
)

type testDirectChatSuite struct {
	BaseChatSuite
}

func TestDirectChatSuite(t *testing.T) {
	suite.Run(t, &testDirectChatSuite{})
}

// TestFullDirectChatFlow walks one buyer/seller exchange end to end:
// conversation resolution from both sides, live delivery, read
// receipts, unseen counting while the conversation is in the
// background and delivery across a reconnect.
func (s *testDirectChatSuite) TestFullDirectChatFlow() {
	ctx := context.Background()

	alice := s.StartClient(ctx, "alice")
	bob := s.StartClient(ctx, "bob")

	var chatID uuid.UUID
	var aliceSession, bobSession *services.ChatSession

	s.Run("Step 1: Both sides resolve the same unique conversation", func() {
		s.StepHeader("Resolve conversation alice <-> bob")

		var err error
		aliceSession, err = alice.Service.OpenWith(ctx, "bob")
		s.Require().NoError(err)
		s.Require().Equal("bob", aliceSession.ReceiverID())
		chatID = aliceSession.Conversation().ID

		// Bob resolving from his side must land on the very same record.
		bobSession, err = bob.Service.OpenWith(ctx, "alice")
		s.Require().NoError(err)
		s.Require().Equal(chatID, bobSession.Conversation().ID)
	})

	s.Run("Step 2: A sent message arrives live in the open session", func() {
		s.StepHeader("Live delivery")

		sent, err := alice.Service.Send(ctx, "is the flat still listed?")
		s.Require().NoError(err)
		s.Require().Equal("alice", sent.SenderID)

		s.Eventually(func() bool {
			messages := bobSession.Messages()
			return len(messages) == 1 && messages[0].ID == sent.ID
		}, 5*time.Second, 50*time.Millisecond, "message never reached bob's open session")
	})

	s.Run("Step 3: The open receiver acknowledges the read server-side", func() {
		s.StepHeader("Read receipts")

		// Bob's session was on screen when the message landed, so the
		// backend record must show him in the seenBy set.
		rest := s.RestClient("alice")
		s.Eventually(func() bool {
			conversation, err := rest.GetChat(ctx, chatID)
			return err == nil && conversation.SeenByUser("bob")
		}, 5*time.Second, 50*time.Millisecond, "read acknowledgement never reached the backend")
	})

	s.Run("Step 4: Background messages raise the unseen tally", func() {
		s.StepHeader("Unseen counting")

		bob.Service.CloseSession()
		s.Require().NoError(bob.Service.Load(ctx))
		s.Require().Equal(0, bob.Service.UnseenCount())

		_, err := alice.Service.Send(ctx, "any news?")
		s.Require().NoError(err)

		s.Eventually(func() bool {
			return bob.Service.UnseenCount() == 1
		}, 5*time.Second, 50*time.Millisecond, "unseen tally never went up")

		// Opening the conversation clears the tally again.
		var reopened *services.ChatSession
		reopened, err = bob.Service.Open(ctx, chatID)
		s.Require().NoError(err)
		s.Require().Equal(0, bob.Service.UnseenCount())
		s.Require().Len(reopened.Messages(), 2)
		bobSession = reopened
	})

	s.Run("Step 5: Delivery resumes after a reconnect", func() {
		s.StepHeader("Reconnect")

		bob.Channel.Disconnect()
		bob.Channel.Connect(ctx)
		s.Eventually(func() bool {
			return bob.Service.ConnectionState() == domain.StateConnected
		}, 5*time.Second, 50*time.Millisecond, "channel never came back up")

		sent, err := alice.Service.Send(ctx, "price dropped, interested?")
		s.Require().NoError(err)

		s.Eventually(func() bool {
			messages := bobSession.Messages()
			return len(messages) == 3 && messages[2].ID == sent.ID
		}, 5*time.Second, 50*time.Millisecond, "delivery never resumed after reconnect")
	})
}
