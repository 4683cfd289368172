package serializer

import "github.com/nerrad567/mqtt-interface/pkg/promise"

type promiseAny = promise.Promise[any]

func promiseNew() *promiseAny {
	return promise.New[any]()
}
