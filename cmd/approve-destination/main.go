// Command approve-destination añade una dirección al allowlist de retiros.
// La aprobación es un acto humano: exige el flag -confirm I_AM_HUMAN para
// que ningún proceso automatizado pueda auto-aprobarse destinos.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/alejandrodnm/polyedge/internal/adapters/onchain"
)

func main() {
	var (
		address    = flag.String("address", "", "dirección 0x... a aprobar")
		label      = flag.String("label", "unnamed", "nombre descriptivo del destino")
		approvedBy = flag.String("approved-by", "", "persona que aprueba")
		ticket     = flag.String("ticket", "", "referencia del ticket de aprobación")
		confirm    = flag.String("confirm", "", "frase de confirmación (I_AM_HUMAN)")
		allowlist  = flag.String("allowlist", "config/approved-destinations.json", "ruta del archivo allowlist")
	)
	flag.Parse()

	if *address == "" || *approvedBy == "" || *ticket == "" || *confirm != "I_AM_HUMAN" {
		fmt.Fprintln(os.Stderr, "uso: approve-destination -address 0x... -label <nombre> -approved-by <persona> -ticket <id> -confirm I_AM_HUMAN")
		os.Exit(1)
	}

	guard := onchain.NewGuard(*allowlist)
	entry := onchain.ApprovedDestination{
		Address:    *address,
		Label:      *label,
		ApprovedBy: *approvedBy,
		Ticket:     *ticket,
	}
	if err := guard.Approve(entry); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Aprobado %s (%s) en %s\n", *address, *label, *allowlist)
}
