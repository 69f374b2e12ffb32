package homeassistant_test

import (
	"strings"
	"time"

	"github.com/ha-testbed/harness/internal/domain"
	"github.com/ha-testbed/harness/pkg/homeassistant"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("Home Assistant Client", func() {
	var (
		fake   *fakeHomeAssistant
		client *homeassistant.Client
		atom   zap.AtomicLevel
	)

	BeforeEach(func() {
		atom = zap.NewAtomicLevelAt(zap.ErrorLevel)
		fake = newFakeHomeAssistant()
		client = homeassistant.NewClient(fake.url(), fakeRefreshToken, "http://localhost", &atom)
	})

	AfterEach(func() {
		fake.close()
	})

	Context("Entity state management", func() {
		It("Will set and read back an entity's state and attributes", func() {
			err := client.SetState("light.kitchen", "on", map[string]interface{}{"brightness": 200.0})
			Expect(err).To(BeNil())

			state, err := client.GetState("light.kitchen")
			Expect(err).To(BeNil())
			Expect(state).ToNot(BeNil())
			Expect(state.EntityID).To(Equal("light.kitchen"))
			Expect(state.State).To(Equal("on"))
			Expect(state.Attributes).To(HaveKeyWithValue("brightness", 200.0))
		})

		It("Will return nil without an error for an entity that does not exist", func() {
			state, err := client.GetState("light.nonexistent")
			Expect(err).To(BeNil())
			Expect(state).To(BeNil())
		})

		It("Will not treat removing a nonexistent entity as an error", func() {
			Expect(client.RemoveEntity("light.nonexistent")).To(BeNil())
		})

		It("Will create uniquely-named test entities and remove them again during cleanup", func() {
			first, err := client.CreateTestEntity("light", "on", nil)
			Expect(err).To(BeNil())
			Expect(strings.HasPrefix(first, "light.harness_test_")).To(BeTrue())

			second, err := client.CreateTestEntity("sensor", "42", nil)
			Expect(err).To(BeNil())
			Expect(second).ToNot(Equal(first))

			state, err := client.GetState(first)
			Expect(err).To(BeNil())
			Expect(state).ToNot(BeNil())

			Expect(client.CleanUpTestEntities()).To(BeNil())

			state, err = client.GetState(first)
			Expect(err).To(BeNil())
			Expect(state).To(BeNil())

			state, err = client.GetState(second)
			Expect(err).To(BeNil())
			Expect(state).To(BeNil())
		})
	})

	Context("Authentication", func() {
		It("Will exchange the refresh token exactly once for consecutive requests", func() {
			fake.setEntity("light.kitchen", "on", nil)

			for i := 0; i < 3; i++ {
				_, err := client.GetState("light.kitchen")
				Expect(err).To(BeNil())
			}

			Expect(fake.exchanges()).To(Equal(1))
		})

		It("Will regenerate the access token and retry once after an HTTP 401", func() {
			fake.setEntity("light.kitchen", "on", nil)

			_, err := client.GetState("light.kitchen")
			Expect(err).To(BeNil())
			Expect(fake.exchanges()).To(Equal(1))

			// Advancing simulated time invalidates previously issued tokens.
			fake.invalidateToken()

			state, err := client.GetState("light.kitchen")
			Expect(err).To(BeNil())
			Expect(state).ToNot(BeNil())
			Expect(state.State).To(Equal("on"))
			Expect(fake.exchanges()).To(Equal(2))
		})

		It("Will fail when the refresh token is not accepted", func() {
			badClient := homeassistant.NewClient(fake.url(), "wrong-token", "http://localhost", &atom)

			_, err := badClient.GetState("light.kitchen")
			Expect(err).To(MatchError(homeassistant.ErrTokenExchangeFailed))
		})
	})

	Context("Awaiting entity states", func() {
		It("Will return once the entity reaches the expected state", func() {
			fake.setEntity("cover.garage", "opening", nil)

			go func() {
				defer GinkgoRecover()
				time.Sleep(time.Millisecond * 400)
				fake.setEntity("cover.garage", "open", nil)
			}()

			err := client.AwaitEntityState("cover.garage", homeassistant.StateEquals("open"), time.Second*5)
			Expect(err).To(BeNil())
		})

		It("Will fail once the timeout elapses without the expected state", func() {
			fake.setEntity("cover.garage", "closed", nil)

			err := client.AwaitEntityState("cover.garage", homeassistant.StateEquals("open"), time.Millisecond*600)
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(ContainSubstring("did not reach the expected state"))
		})

		It("Will fail immediately when the entity does not exist", func() {
			err := client.AwaitEntityState("cover.nonexistent", homeassistant.StateEquals("open"), time.Second*5)
			Expect(err).To(MatchError(homeassistant.ErrEntityNotFound))
		})
	})

	Context("Sun state lookups", func() {
		BeforeEach(func() {
			fake.setEntity("sun.sun", "below_horizon", map[string]interface{}{
				"next_rising":  "2026-06-16T04:45:00Z",
				"next_setting": "2026-06-16T20:21:00Z",
			})
		})

		It("Will report the next sunrise", func() {
			value, err := client.NextSunEvent(domain.PresetSunrise)
			Expect(err).To(BeNil())
			Expect(value).To(Equal("2026-06-16T04:45:00Z"))
		})

		It("Will report the next sunset", func() {
			value, err := client.NextSunEvent(domain.PresetSunset)
			Expect(err).To(BeNil())
			Expect(value).To(Equal("2026-06-16T20:21:00Z"))
		})

		It("Will fail when the sun entity is unavailable", func() {
			emptyFake := newFakeHomeAssistant()
			defer emptyFake.close()

			isolated := homeassistant.NewClient(emptyFake.url(), fakeRefreshToken, "http://localhost", &atom)
			_, err := isolated.NextSunEvent(domain.PresetSunrise)
			Expect(err).To(MatchError(homeassistant.ErrSunStateUnavailable))
		})

		It("Will fail when the sun entity lacks the requested attribute", func() {
			fake.setEntity("sun.sun", "below_horizon", map[string]interface{}{"next_setting": "2026-06-16T20:21:00Z"})

			_, err := client.NextSunEvent(domain.PresetSunrise)
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(ContainSubstring("sunrise"))
		})
	})

	Context("State change events", func() {
		It("Will authenticate, subscribe, and deliver state_changed events", func() {
			stream, err := client.SubscribeStateChanges()
			Expect(err).To(BeNil())
			defer stream.Close()

			var event homeassistant.StateChangedEvent
			Eventually(stream.Events(), time.Second*5).Should(Receive(&event))

			Expect(event.EntityId).To(Equal("light.living_room"))
			Expect(event.OldState).ToNot(BeNil())
			Expect(event.OldState.State).To(Equal("off"))
			Expect(event.NewState).ToNot(BeNil())
			Expect(event.NewState.State).To(Equal("on"))
		})

		It("Will close the events channel once the stream is closed", func() {
			stream, err := client.SubscribeStateChanges()
			Expect(err).To(BeNil())

			var event homeassistant.StateChangedEvent
			Eventually(stream.Events(), time.Second*5).Should(Receive(&event))

			stream.Close()
			Eventually(stream.Events(), time.Second*5).Should(BeClosed())
		})
	})
})
