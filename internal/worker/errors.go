package worker

import "errors"

var errHeadlessUnavailable = errors.New("item requires headless rendering but no headless fetcher is configured")
