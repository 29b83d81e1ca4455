// Command hotelcrawler crawls a hotel directory into a JSON-lines dataset.
package main

import (
	"os"

	"github.com/JakeFAU/hotel-directory-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
