package enginecmder_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	enginecmder "github.com/papercomputeco/strata/cmd/strata/engine"
	"github.com/papercomputeco/strata/pkg/config"
)

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "strata-engine-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
	})

	// load parses args on a throwaway command and returns the resolved env.
	load := func(args ...string) (*enginecmder.Env, error) {
		var (
			flags enginecmder.Flags
			env   *enginecmder.Env
		)
		cmd := &cobra.Command{
			Use: "test",
			RunE: func(cmd *cobra.Command, _ []string) error {
				var err error
				env, err = enginecmder.Load(cmd)
				return err
			},
		}
		cmd.Flags().Bool("debug", false, "")
		cmd.Flags().String("config-dir", "", "")
		flags.AddFlags(cmd)
		cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
		err := cmd.Execute()
		return env, err
	}

	It("uses defaults without a config file", func() {
		env, err := load()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(env.Close)

		Expect(env.Config.Relational.Provider).To(Equal("sqlite"))
		Expect(env.Config.VectorStore.Provider).To(Equal("sqlitevec"))
		Expect(env.ConfigDir).To(Equal(dir))
	})

	It("prefers flags over the config file", func() {
		cfger, err := config.NewConfiger(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfger.SetConfigValue("vector_store.provider", "qdrant")).To(Succeed())
		Expect(cfger.SetConfigValue("embedding.model", "nomic-embed-text")).To(Succeed())

		env, err := load("--vector-store", "memory")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(env.Close)

		Expect(env.Config.VectorStore.Provider).To(Equal("memory"))
		Expect(env.Config.Embedding.Model).To(Equal("nomic-embed-text"))
	})

	It("rejects invalid configuration", func() {
		_, err := load("--relational", "oracle")
		Expect(err).To(MatchError(ContainSubstring("unsupported relational provider")))
	})

	It("appends logs to the configured file", func() {
		logFile := filepath.Join(dir, "strata.log")
		env, err := load("--log-file", logFile)
		Expect(err).NotTo(HaveOccurred())

		env.Logger.Info("hello", "k", "v")
		Expect(env.Close()).To(Succeed())

		data, err := os.ReadFile(logFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"hello"`))
	})

	It("opens a local engine", func() {
		env, err := load("--vector-store", "memory", "--embedding-provider", "hashing", "--embedding-dimensions", "16")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(env.Close)

		engine, err := env.Open(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Close(context.Background())).To(Succeed())
	})
})
