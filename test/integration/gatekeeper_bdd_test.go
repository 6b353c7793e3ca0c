//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/test/fixtures"
)

var _ = Describe("Gatekeeper", func() {
	var (
		dataDir    string
		classifier *fixtures.FakeClassifier
		questions  *fixtures.FakeQuestionService
		gk         *stack
	)

	BeforeEach(func() {
		dataDir = GinkgoT().TempDir()
		classifier = fixtures.NewFakeClassifier(true)
		classifier.SetVerdict("reddit.com", false)
		questions = fixtures.NewFakeQuestionService("What are you researching?")

		var err error
		gk, err = newStack(dataDir, classifier, questions, false)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		gk.Close()
		classifier.Close()
		questions.Close()
	})

	startResearch := func(duration string) {
		status, _, err := gk.call(http.MethodPost, "/api/session/domain", map[string]string{"domain": "research"})
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		status, body, err := gk.call(http.MethodPost, "/api/session/complete", map[string]any{
			"context":  map[string]string{"What are you researching?": "protein folding"},
			"duration": duration,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["state"]).To(Equal(string(domain.StateActiveWindow)))
	}

	Describe("without a session", func() {
		It("redirects every navigation to the no-session page", func() {
			for i, target := range []string{"https://wikipedia.org", "https://reddit.com/r/all", "http://example.com"} {
				body, err := gk.navigate(i+1, target)
				Expect(err).NotTo(HaveOccurred())
				Expect(body["action"]).To(Equal("redirect"))
				Expect(body["reason"]).To(Equal("no-session"))
				Expect(body["redirectUrl"]).To(ContainSubstring("reason=no-session"))
			}
			Expect(classifier.Calls()).To(BeZero())

			rule, ok := gk.table.Match("https://wikipedia.org")
			Expect(ok).To(BeTrue())
			Expect(rule.Kind).To(Equal(domain.RuleCatchAll))
		})

		It("never redirects the gatekeeper itself", func() {
			_, ok := gk.table.Match("http://127.0.0.1:8787/interstitial?reason=no-session")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("an active research window", func() {
		BeforeEach(func() {
			startResearch("30m")
		})

		It("lets productive destinations through without changing the rule", func() {
			_, revision := gk.table.Snapshot()

			body, err := gk.navigate(1, "https://en.wikipedia.org/wiki/Protein")
			Expect(err).NotTo(HaveOccurred())
			Expect(body["action"]).To(Equal("allow"))
			Expect(classifier.LastDomain()).To(Equal("research"))

			_, after := gk.table.Snapshot()
			Expect(after).To(Equal(revision))
			_, ok := gk.table.Match("https://en.wikipedia.org")
			Expect(ok).To(BeFalse())
		})

		It("blocks unproductive destinations and republishes the rule", func() {
			body, err := gk.navigate(2, "https://www.reddit.com/r/golang")
			Expect(err).NotTo(HaveOccurred())
			Expect(body["action"]).To(Equal("redirect"))
			Expect(body["reason"]).To(Equal("blocked"))

			rule, ok := gk.table.Match("https://old.reddit.com")
			Expect(ok).To(BeTrue())
			Expect(rule.Kind).To(Equal(domain.RuleDomainSet))
			Expect(rule.Domains).To(ConsistOf("reddit.com"))

			snap := gk.sessions.Snapshot()
			Expect(snap.BlockedDestinations).To(ConsistOf("reddit.com"))

			cmds := gk.tabs.Drain()
			Expect(cmds).To(HaveLen(1))
			Expect(cmds[0].TabID).To(Equal(2))
			Expect(cmds[0].URL).To(ContainSubstring("reason=blocked"))
		})

		It("answers repeat visits from the cache", func() {
			_, err := gk.navigate(1, "https://reddit.com")
			Expect(err).NotTo(HaveOccurred())
			body, err := gk.navigate(1, "https://np.reddit.com/r/all")
			Expect(err).NotTo(HaveOccurred())
			Expect(body["cached"]).To(BeTrue())
			Expect(classifier.Calls()).To(Equal(int64(1)))
		})

		It("fails closed when the classifier is down", func() {
			classifier.FailWith(http.StatusInternalServerError)

			body, err := gk.navigate(3, "https://news.ycombinator.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(body["action"]).To(Equal("redirect"))
			Expect(body["reason"]).To(Equal("blocked"))
			Expect(body["error"]).NotTo(BeEmpty())
			Expect(gk.sessions.Snapshot().BlockedDestinations).To(ContainElement("ycombinator.com"))
		})

		It("persists the block window", func() {
			_, err := gk.navigate(2, "https://reddit.com")
			Expect(err).NotTo(HaveOccurred())

			raw, found, err := gk.store.Get(domain.RecordBlockData)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			var rec domain.BlockRecord
			Expect(json.Unmarshal(raw, &rec)).To(Succeed())
			Expect(rec.BlockedDomains).To(ConsistOf("reddit.com"))
			Expect(time.UnixMilli(rec.EndTime)).To(BeTemporally("~", time.Now().Add(30*time.Minute), 5*time.Second))
		})
	})

	Describe("window expiry", func() {
		It("tears the window down and restores the catch-all", func() {
			startResearch("300ms")
			_, err := gk.navigate(2, "https://reddit.com")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() domain.SessionState {
				return gk.sessions.Snapshot().State
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(domain.StateNoSession))

			Expect(gk.sessions.Snapshot().BlockedDestinations).To(BeEmpty())
			rule, ok := gk.table.Match("https://wikipedia.org")
			Expect(ok).To(BeTrue())
			Expect(rule.Kind).To(Equal(domain.RuleCatchAll))

			_, found, err := gk.store.Get(domain.RecordBlockData)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
		})
	})

	Describe("a forbidden question service", func() {
		It("keeps the session contextualizing and shows the service message", func() {
			questions.Forbid("Daily session limit reached")

			status, _, err := gk.call(http.MethodPost, "/api/session/domain", map[string]string{"domain": "research"})
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusOK))

			status, body, err := gk.call(http.MethodGet, "/api/questions", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusForbidden))
			Expect(body["error"]).To(Equal("Daily session limit reached"))
			Expect(questions.GetQuestionsCalls()).To(Equal(int64(1)))

			snap := gk.sessions.Snapshot()
			Expect(snap.State).To(Equal(domain.StateContextualizing))
			Expect(snap.LastError).To(ContainSubstring("Daily session limit reached"))

			rule, ok := gk.table.Match("https://wikipedia.org")
			Expect(ok).To(BeTrue())
			Expect(rule.Kind).To(Equal(domain.RuleCatchAll))
		})
	})

	Describe("restart", func() {
		It("resumes an unexpired window from the encrypted store", func() {
			startResearch("30m")
			_, err := gk.navigate(2, "https://reddit.com")
			Expect(err).NotTo(HaveOccurred())
			gk.Close()

			gk, err = newStack(dataDir, classifier, questions, true)
			Expect(err).NotTo(HaveOccurred())

			snap := gk.sessions.Snapshot()
			Expect(snap.State).To(Equal(domain.StateActiveWindow))
			Expect(snap.Domain).To(Equal("research"))
			Expect(snap.BlockedDestinations).To(ConsistOf("reddit.com"))

			_, ok := gk.table.Match("https://reddit.com")
			Expect(ok).To(BeTrue())
		})

		It("discards the stored window when resume is off", func() {
			startResearch("30m")
			gk.Close()

			var err error
			gk, err = newStack(dataDir, classifier, questions, false)
			Expect(err).NotTo(HaveOccurred())

			Expect(gk.sessions.Snapshot().State).To(Equal(domain.StateNoSession))
			_, found, err := gk.store.Get(domain.RecordSessionData)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
		})
	})
})
