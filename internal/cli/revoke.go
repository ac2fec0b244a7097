package cli

import (
	"github.com/spf13/cobra"

	"github.com/medisync/session-gateway/internal/api/metrics"
	"github.com/medisync/session-gateway/internal/core/ports"
	"github.com/medisync/session-gateway/internal/core/service"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke UID",
	Short: "Revoke every session of an identity on all devices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRevocation(cmd.Context(), func(revoker *service.SessionRevoker, _ *service.ClaimsService) error {
			if err := revoker.Revoke(cmd.Context(), args[0], ports.RequestMeta{}); err != nil {
				return err
			}
			metrics.SessionRevocationsTotal.WithLabelValues("cli").Inc()
			printf(cmd, "revoked %s\n", args[0])
			return nil
		})
	},
}
